package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchingTemplate declares how one entity type is matched against another.
// Config is the raw matching configuration as provided by the caller; the
// normalizer canonicalizes it and writes the canonical form back so every
// reader sees the same shape. Unique on (workspace, name, source type, target
// type).
type MatchingTemplate struct {
	ID                 string                 `json:"id"`
	WorkspaceID        string                 `json:"workspace_id" badgerhold:"index"`
	Name               string                 `json:"name"`
	SourceEntityTypeID string                 `json:"source_entity_type_id" badgerhold:"index"`
	TargetEntityTypeID string                 `json:"target_entity_type_id" badgerhold:"index"`
	Config             map[string]interface{} `json:"config"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// NewMatchingTemplate creates a template with a generated ID
func NewMatchingTemplate(workspaceID, name, sourceTypeID, targetTypeID string, config map[string]interface{}) *MatchingTemplate {
	now := time.Now().UTC()
	return &MatchingTemplate{
		ID:                 uuid.New().String(),
		WorkspaceID:        workspaceID,
		Name:               name,
		SourceEntityTypeID: sourceTypeID,
		TargetEntityTypeID: targetTypeID,
		Config:             config,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate checks required template fields
func (t *MatchingTemplate) Validate() error {
	if t.WorkspaceID == "" {
		return fmt.Errorf("template workspace is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if t.SourceEntityTypeID == "" || t.TargetEntityTypeID == "" {
		return fmt.Errorf("template requires source and target entity types")
	}
	return nil
}

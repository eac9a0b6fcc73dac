package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workspace is the tenant boundary. Every other record carries a workspace
// reference and cross-workspace references are rejected at the storage layer.
type Workspace struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug" badgerhold:"index"` // Stable identifier, unique
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWorkspace creates a workspace with a generated ID
func NewWorkspace(slug, name string) *Workspace {
	return &Workspace{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks required workspace fields
func (w *Workspace) Validate() error {
	if strings.TrimSpace(w.Slug) == "" {
		return fmt.Errorf("workspace slug is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("workspace name is required")
	}
	return nil
}

// EntityType describes the role an entity plays inside a workspace,
// e.g. "position" and "candidate". Unique on (workspace, slug).
type EntityType struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id" badgerhold:"index"`
	Slug        string `json:"slug" badgerhold:"index"`
	Name        string `json:"name"`
}

// NewEntityType creates an entity type with a generated ID
func NewEntityType(workspaceID, slug, name string) *EntityType {
	return &EntityType{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Slug:        slug,
		Name:        name,
	}
}

// Validate checks required entity type fields
func (t *EntityType) Validate() error {
	if t.WorkspaceID == "" {
		return fmt.Errorf("entity type workspace is required")
	}
	if strings.TrimSpace(t.Slug) == "" {
		return fmt.Errorf("entity type slug is required")
	}
	return nil
}

// Entity is a thing being matched: a position, a candidate, a company.
// Its text lives in owned documents; its vectors in the search index.
type Entity struct {
	ID           string                 `json:"id"`
	WorkspaceID  string                 `json:"workspace_id" badgerhold:"index"`
	EntityTypeID string                 `json:"entity_type_id" badgerhold:"index"`
	Name         string                 `json:"name"`
	ExternalRef  string                 `json:"external_ref,omitempty" badgerhold:"index"` // Caller-provided identifier (email, ATS id, ...)
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewEntity creates an entity with a generated ID
func NewEntity(workspaceID, entityTypeID, name string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:           uuid.New().String(),
		WorkspaceID:  workspaceID,
		EntityTypeID: entityTypeID,
		Name:         name,
		Metadata:     map[string]interface{}{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks required entity fields
func (e *Entity) Validate() error {
	if e.WorkspaceID == "" {
		return fmt.Errorf("entity workspace is required")
	}
	if e.EntityTypeID == "" {
		return fmt.Errorf("entity type is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity name is required")
	}
	return nil
}

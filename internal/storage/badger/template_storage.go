package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TemplateStorage implements the TemplateStorage interface for Badger
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TemplateStorage) SaveTemplate(ctx context.Context, t *models.MatchingTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}

	var existing []models.MatchingTemplate
	query := badgerhold.Where("WorkspaceID").Eq(t.WorkspaceID).And("Name").Eq(t.Name)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return fmt.Errorf("failed to check template name: %w", err)
	}
	for i := range existing {
		if existing[i].ID != t.ID {
			return fmt.Errorf("template name already in use: %s", t.Name)
		}
	}

	if err := s.db.Store().Upsert(t.ID, t); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) GetTemplate(ctx context.Context, id string) (*models.MatchingTemplate, error) {
	var t models.MatchingTemplate
	if err := s.db.Store().Get(id, &t); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("template not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

func (s *TemplateStorage) ListTemplates(ctx context.Context, workspaceID string) ([]*models.MatchingTemplate, error) {
	var templates []models.MatchingTemplate
	if err := s.db.Store().Find(&templates, badgerhold.Where("WorkspaceID").Eq(workspaceID).SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	result := make([]*models.MatchingTemplate, len(templates))
	for i := range templates {
		result[i] = &templates[i]
	}
	return result, nil
}

// DeleteTemplate refuses to remove a template that matching jobs still
// reference; job history keeps pointing at the template it ran with.
func (s *TemplateStorage) DeleteTemplate(ctx context.Context, id string) error {
	count, err := s.db.Store().Count(&models.MatchingJob{}, badgerhold.Where("TemplateID").Eq(id))
	if err != nil {
		return fmt.Errorf("failed to check template references: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("template is referenced by %d matching jobs", int(count))
	}

	if err := s.db.Store().Delete(id, &models.MatchingTemplate{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) UpdateTemplateConfig(ctx context.Context, id string, config map[string]interface{}) error {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	t.Config = config
	t.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(t.ID, t); err != nil {
		return fmt.Errorf("failed to update template config: %w", err)
	}
	return nil
}

package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// WorkspaceStorage implements the WorkspaceStorage interface for Badger
type WorkspaceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkspaceStorage creates a new WorkspaceStorage instance
func NewWorkspaceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WorkspaceStorage {
	return &WorkspaceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WorkspaceStorage) SaveWorkspace(ctx context.Context, ws *models.Workspace) error {
	if err := ws.Validate(); err != nil {
		return err
	}

	// Slug is the lookup key for the management API, so it must stay unique
	var existing []models.Workspace
	if err := s.db.Store().Find(&existing, badgerhold.Where("Slug").Eq(ws.Slug)); err != nil {
		return fmt.Errorf("failed to check workspace slug: %w", err)
	}
	for i := range existing {
		if existing[i].ID != ws.ID {
			return fmt.Errorf("workspace slug already in use: %s", ws.Slug)
		}
	}

	if err := s.db.Store().Upsert(ws.ID, ws); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

func (s *WorkspaceStorage) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.db.Store().Get(id, &ws); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("workspace not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

func (s *WorkspaceStorage) GetWorkspaceBySlug(ctx context.Context, slug string) (*models.Workspace, error) {
	var results []models.Workspace
	if err := s.db.Store().Find(&results, badgerhold.Where("Slug").Eq(slug).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find workspace: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("workspace not found: %s", slug)
	}
	return &results[0], nil
}

func (s *WorkspaceStorage) ListWorkspaces(ctx context.Context) ([]*models.Workspace, error) {
	var workspaces []models.Workspace
	if err := s.db.Store().Find(&workspaces, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	result := make([]*models.Workspace, len(workspaces))
	for i := range workspaces {
		result[i] = &workspaces[i]
	}
	return result, nil
}

// DeleteWorkspace removes the workspace and everything scoped to it:
// entity types, entities with their documents and chunks, templates, and
// matching jobs with their runs, audit rows, matches and updates.
func (s *WorkspaceStorage) DeleteWorkspace(ctx context.Context, id string) error {
	store := s.db.Store()

	var entities []models.Entity
	if err := store.Find(&entities, badgerhold.Where("WorkspaceID").Eq(id)); err != nil {
		return fmt.Errorf("failed to list entities for delete: %w", err)
	}
	for i := range entities {
		if err := deleteEntityTree(store, entities[i].ID); err != nil {
			return err
		}
	}

	if err := store.DeleteMatching(&models.EntityType{}, badgerhold.Where("WorkspaceID").Eq(id)); err != nil {
		return fmt.Errorf("failed to delete entity types: %w", err)
	}
	if err := store.DeleteMatching(&models.MatchingTemplate{}, badgerhold.Where("WorkspaceID").Eq(id)); err != nil {
		return fmt.Errorf("failed to delete templates: %w", err)
	}

	var jobs []models.MatchingJob
	if err := store.Find(&jobs, badgerhold.Where("WorkspaceID").Eq(id)); err != nil {
		return fmt.Errorf("failed to list jobs for delete: %w", err)
	}
	for i := range jobs {
		if err := deleteJobTree(store, jobs[i].ID); err != nil {
			return err
		}
	}

	if err := store.Delete(id, &models.Workspace{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	s.logger.Info().Str("workspace_id", id).Msg("Workspace deleted")
	return nil
}

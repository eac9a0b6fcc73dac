package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EntityStorage implements the EntityStorage interface for Badger
type EntityStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEntityStorage creates a new EntityStorage instance
func NewEntityStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EntityStorage {
	return &EntityStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EntityStorage) SaveEntityType(ctx context.Context, et *models.EntityType) error {
	if err := et.Validate(); err != nil {
		return err
	}

	var existing []models.EntityType
	query := badgerhold.Where("WorkspaceID").Eq(et.WorkspaceID).And("Slug").Eq(et.Slug)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return fmt.Errorf("failed to check entity type slug: %w", err)
	}
	for i := range existing {
		if existing[i].ID != et.ID {
			return fmt.Errorf("entity type slug already in use: %s", et.Slug)
		}
	}

	if err := s.db.Store().Upsert(et.ID, et); err != nil {
		return fmt.Errorf("failed to save entity type: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetEntityType(ctx context.Context, id string) (*models.EntityType, error) {
	var et models.EntityType
	if err := s.db.Store().Get(id, &et); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("entity type not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get entity type: %w", err)
	}
	return &et, nil
}

func (s *EntityStorage) GetEntityTypeBySlug(ctx context.Context, workspaceID, slug string) (*models.EntityType, error) {
	var results []models.EntityType
	query := badgerhold.Where("WorkspaceID").Eq(workspaceID).And("Slug").Eq(slug).Limit(1)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to find entity type: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("entity type not found: %s", slug)
	}
	return &results[0], nil
}

func (s *EntityStorage) ListEntityTypes(ctx context.Context, workspaceID string) ([]*models.EntityType, error) {
	var types []models.EntityType
	if err := s.db.Store().Find(&types, badgerhold.Where("WorkspaceID").Eq(workspaceID).SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}

	result := make([]*models.EntityType, len(types))
	for i := range types {
		result[i] = &types[i]
	}
	return result, nil
}

func (s *EntityStorage) DeleteEntityType(ctx context.Context, id string) error {
	store := s.db.Store()

	var entities []models.Entity
	if err := store.Find(&entities, badgerhold.Where("EntityTypeID").Eq(id)); err != nil {
		return fmt.Errorf("failed to list entities for delete: %w", err)
	}
	for i := range entities {
		if err := deleteEntityTree(store, entities[i].ID); err != nil {
			return err
		}
	}

	if err := store.Delete(id, &models.EntityType{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete entity type: %w", err)
	}
	return nil
}

func (s *EntityStorage) SaveEntity(ctx context.Context, e *models.Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	// The entity must belong to the same workspace as its type
	et, err := s.GetEntityType(ctx, e.EntityTypeID)
	if err != nil {
		return err
	}
	if et.WorkspaceID != e.WorkspaceID {
		return fmt.Errorf("entity workspace %s does not match entity type workspace %s", e.WorkspaceID, et.WorkspaceID)
	}

	if e.ExternalRef != "" {
		var existing []models.Entity
		query := badgerhold.Where("WorkspaceID").Eq(e.WorkspaceID).And("ExternalRef").Eq(e.ExternalRef)
		if err := s.db.Store().Find(&existing, query); err != nil {
			return fmt.Errorf("failed to check external ref: %w", err)
		}
		for i := range existing {
			if existing[i].ID != e.ID {
				return fmt.Errorf("external ref already in use: %s", e.ExternalRef)
			}
		}
	}

	if err := s.db.Store().Upsert(e.ID, e); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	var e models.Entity
	if err := s.db.Store().Get(id, &e); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("entity not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &e, nil
}

func (s *EntityStorage) GetEntityByExternalRef(ctx context.Context, workspaceID, externalRef string) (*models.Entity, error) {
	var results []models.Entity
	query := badgerhold.Where("WorkspaceID").Eq(workspaceID).And("ExternalRef").Eq(externalRef).Limit(1)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to find entity: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("entity not found: %s", externalRef)
	}
	return &results[0], nil
}

func (s *EntityStorage) ListEntities(ctx context.Context, workspaceID string, opts *interfaces.ListOptions) ([]*models.Entity, error) {
	query := badgerhold.Where("WorkspaceID").Eq(workspaceID).SortBy("CreatedAt").Reverse()
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var entities []models.Entity
	if err := s.db.Store().Find(&entities, query); err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	result := make([]*models.Entity, len(entities))
	for i := range entities {
		result[i] = &entities[i]
	}
	return result, nil
}

func (s *EntityStorage) ListEntitiesByType(ctx context.Context, entityTypeID string, limit int) ([]*models.Entity, error) {
	query := badgerhold.Where("EntityTypeID").Eq(entityTypeID).SortBy("CreatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entities []models.Entity
	if err := s.db.Store().Find(&entities, query); err != nil {
		return nil, fmt.Errorf("failed to list entities by type: %w", err)
	}

	result := make([]*models.Entity, len(entities))
	for i := range entities {
		result[i] = &entities[i]
	}
	return result, nil
}

func (s *EntityStorage) DeleteEntity(ctx context.Context, id string) error {
	return deleteEntityTree(s.db.Store(), id)
}

func (s *EntityStorage) CountEntities(ctx context.Context, workspaceID string) (int, error) {
	count, err := s.db.Store().Count(&models.Entity{}, badgerhold.Where("WorkspaceID").Eq(workspaceID))
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return int(count), nil
}

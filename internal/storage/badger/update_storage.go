package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UpdateStorage implements the UpdateStorage interface for Badger. Updates
// are append-only; clients replay them in reverse-chronological order.
type UpdateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUpdateStorage creates a new UpdateStorage instance
func NewUpdateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UpdateStorage {
	return &UpdateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UpdateStorage) AppendUpdate(ctx context.Context, update *models.MatchingJobUpdate) error {
	if update.ID == "" || update.JobID == "" {
		return fmt.Errorf("update ID and job ID are required")
	}
	if err := s.db.Store().Insert(update.ID, update); err != nil {
		return fmt.Errorf("failed to append update: %w", err)
	}
	return nil
}

func (s *UpdateStorage) ListUpdates(ctx context.Context, jobID string, limit int) ([]*models.MatchingJobUpdate, error) {
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var updates []models.MatchingJobUpdate
	if err := s.db.Store().Find(&updates, query); err != nil {
		return nil, fmt.Errorf("failed to list updates: %w", err)
	}

	result := make([]*models.MatchingJobUpdate, len(updates))
	for i := range updates {
		result[i] = &updates[i]
	}
	return result, nil
}

func (s *UpdateStorage) CountUpdates(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.MatchingJobUpdate{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count updates: %w", err)
	}
	return int(count), nil
}

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

// MatchingRunStorage implements the MatchingRunStorage interface for Badger
type MatchingRunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchingRunStorage creates a new MatchingRunStorage instance
func NewMatchingRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchingRunStorage {
	return &MatchingRunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchingRunStorage) SaveRun(ctx context.Context, run *models.MatchingJobRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.JobID == "" {
		return fmt.Errorf("run job ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *MatchingRunStorage) GetRun(ctx context.Context, id string) (*models.MatchingJobRun, error) {
	var run models.MatchingJobRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// GetLatestRun returns the most recently started run for the job, or nil
// when the job has never run.
func (s *MatchingRunStorage) GetLatestRun(ctx context.Context, jobID string) (*models.MatchingJobRun, error) {
	var runs []models.MatchingJobRun
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("StartedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *MatchingRunStorage) ListRuns(ctx context.Context, jobID string) ([]*models.MatchingJobRun, error) {
	var runs []models.MatchingJobRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("JobID").Eq(jobID).SortBy("StartedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.MatchingJobRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// ListStaleRuns finds runs still marked running that started before the
// cutoff. The stale sweeper fails these and their jobs.
func (s *MatchingRunStorage) ListStaleRuns(ctx context.Context, olderThan time.Time) ([]*models.MatchingJobRun, error) {
	var runs []models.MatchingJobRun
	query := badgerhold.Where("Status").Eq(models.RunStatusRunning).And("StartedAt").Lt(olderThan)
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list stale runs: %w", err)
	}

	result := make([]*models.MatchingJobRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

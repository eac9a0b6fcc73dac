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

// MatchingJobStorage implements the MatchingJobStorage interface for Badger
type MatchingJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchingJobStorage creates a new MatchingJobStorage instance
func NewMatchingJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchingJobStorage {
	return &MatchingJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchingJobStorage) SaveJob(ctx context.Context, job *models.MatchingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save matching job: %w", err)
	}
	return nil
}

func (s *MatchingJobStorage) GetJob(ctx context.Context, id string) (*models.MatchingJob, error) {
	var job models.MatchingJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("matching job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get matching job: %w", err)
	}
	return &job, nil
}

func (s *MatchingJobStorage) ListJobs(ctx context.Context, workspaceID string, status models.JobStatus, opts *interfaces.ListOptions) ([]*models.MatchingJob, error) {
	query := badgerhold.Where("ID").Ne("")
	if workspaceID != "" {
		query = query.And("WorkspaceID").Eq(workspaceID)
	}
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var jobs []models.MatchingJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list matching jobs: %w", err)
	}

	result := make([]*models.MatchingJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *MatchingJobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := deleteJobTree(s.db.Store(), id); err != nil {
		return err
	}
	s.logger.Info().Str("job_id", id).Msg("Matching job deleted")
	return nil
}

func (s *MatchingJobStorage) UpdateJobConfigOverride(ctx context.Context, id string, override map[string]interface{}) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	job.ConfigOverride = override
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to update job config override: %w", err)
	}
	return nil
}

// AddTarget pins an entity to a job. A (job, entity) pair can only exist
// once; re-adding is a no-op and returns false.
func (s *MatchingJobStorage) AddTarget(ctx context.Context, target *models.MatchingJobTarget) (bool, error) {
	if target.JobID == "" || target.EntityID == "" {
		return false, fmt.Errorf("target job ID and entity ID are required")
	}

	var existing []models.MatchingJobTarget
	query := badgerhold.Where("JobID").Eq(target.JobID).And("EntityID").Eq(target.EntityID).Limit(1)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return false, fmt.Errorf("failed to check existing target: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	if err := s.db.Store().Insert(target.ID, target); err != nil {
		return false, fmt.Errorf("failed to add target: %w", err)
	}
	return true, nil
}

func (s *MatchingJobStorage) ListTargets(ctx context.Context, jobID string) ([]*models.MatchingJobTarget, error) {
	var targets []models.MatchingJobTarget
	if err := s.db.Store().Find(&targets, badgerhold.Where("JobID").Eq(jobID).SortBy("AddedAt")); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	result := make([]*models.MatchingJobTarget, len(targets))
	for i := range targets {
		result[i] = &targets[i]
	}
	return result, nil
}

func (s *MatchingJobStorage) CountTargets(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.MatchingJobTarget{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count targets: %w", err)
	}
	return int(count), nil
}

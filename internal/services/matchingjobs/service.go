package matchingjobs

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
)

// CreateJobRequest carries everything needed to create a matching job. Target
// pinning is optional: explicit ids, auto-population from the template target
// type, or both.
type CreateJobRequest struct {
	WorkspaceID    string                 `json:"workspace_id" validate:"required,uuid4"`
	TemplateID     string                 `json:"template_id" validate:"required,uuid4"`
	SourceEntityID string                 `json:"source_entity_id" validate:"required,uuid4"`
	ConfigOverride map[string]interface{} `json:"config_override,omitempty"`
	TargetIDs      []string               `json:"target_ids,omitempty"`
	AutoPopulate   bool                   `json:"auto_populate,omitempty"`
	TargetCount    int                    `json:"target_count,omitempty" validate:"gte=0"`
	Enqueue        bool                   `json:"enqueue,omitempty"`
}

// Service owns matching job creation and lifecycle operations. Enqueueing is
// explicit at this boundary: saving a job never triggers execution by itself.
type Service struct {
	storage  interfaces.StorageManager
	queue    interfaces.QueueManager
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates the matching job service
func NewService(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateJob validates the request, persists the job with its pinned targets
// and, when requested, enqueues the first run
func (s *Service) CreateJob(ctx context.Context, req *CreateJobRequest) (*models.MatchingJob, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid job request: %w", err)
	}

	if _, err := s.storage.Workspaces().GetWorkspace(ctx, req.WorkspaceID); err != nil {
		return nil, fmt.Errorf("workspace not found: %w", err)
	}

	template, err := s.storage.Templates().GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	if template.WorkspaceID != req.WorkspaceID {
		return nil, fmt.Errorf("template belongs to a different workspace")
	}

	source, err := s.storage.Entities().GetEntity(ctx, req.SourceEntityID)
	if err != nil {
		return nil, fmt.Errorf("source entity not found: %w", err)
	}
	if source.WorkspaceID != req.WorkspaceID {
		return nil, fmt.Errorf("source entity belongs to a different workspace")
	}
	if source.EntityTypeID != template.SourceEntityTypeID {
		return nil, fmt.Errorf("source entity type does not match the template source type")
	}

	// Reject a broken override at creation time rather than at run time
	if len(req.ConfigOverride) > 0 {
		if _, err := matching.NormalizeMatchingConfig(req.ConfigOverride, matching.ContextOverride); err != nil {
			return nil, err
		}
	}

	job := models.NewMatchingJob(req.WorkspaceID, req.TemplateID, req.SourceEntityID, req.ConfigOverride)
	if err := s.storage.MatchingJobs().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	for _, targetID := range req.TargetIDs {
		if err := s.pinTarget(ctx, job, template, targetID); err != nil {
			return nil, err
		}
	}

	if req.AutoPopulate {
		if _, err := s.PopulateTargets(ctx, job.ID, req.TargetCount); err != nil {
			return nil, err
		}
	}

	if req.Enqueue {
		if err := s.EnqueueRun(ctx, job.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("template_id", template.ID).
		Str("source_entity_id", source.ID).
		Msg("Matching job created")
	return job, nil
}

// EnqueueRun puts a run_matching_job task on the queue for the job. Jobs
// currently running are rejected; finished jobs can be re-run.
func (s *Service) EnqueueRun(ctx context.Context, jobID string) error {
	job, err := s.storage.MatchingJobs().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job not found: %w", err)
	}
	if job.Status == models.JobStatusRunning {
		return fmt.Errorf("job is already running")
	}

	count, err := s.storage.MatchingJobs().CountTargets(ctx, jobID)
	if err != nil {
		return fmt.Errorf("count targets: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("job has no targets")
	}

	task, err := models.NewRunMatchingJobTask(jobID)
	if err != nil {
		return fmt.Errorf("build run task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue run task: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Msg("Matching job enqueued")
	return nil
}

// PopulateTargets pins candidate entities of the template's target type to
// the job. The source entity is excluded and already-pinned entities are
// skipped; returns the number of targets actually added. A positive limit
// caps the pinned count; zero falls back to the job's target_count override,
// and absent both, all candidates are pinned.
func (s *Service) PopulateTargets(ctx context.Context, jobID string, limit int) (int, error) {
	job, err := s.storage.MatchingJobs().GetJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("job not found: %w", err)
	}
	template, err := s.storage.Templates().GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return 0, fmt.Errorf("template not found: %w", err)
	}

	targetType, err := s.resolveTargetType(ctx, job, template)
	if err != nil {
		return 0, err
	}

	if limit <= 0 {
		limit = overrideTargetCount(job.ConfigOverride)
	}

	candidates, err := s.storage.Entities().ListEntitiesByType(ctx, targetType, 0)
	if err != nil {
		return 0, fmt.Errorf("list candidate entities: %w", err)
	}

	added := 0
	for _, candidate := range candidates {
		if candidate.ID == job.SourceEntityID {
			continue
		}
		if limit > 0 && added >= limit {
			break
		}
		created, err := s.storage.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, candidate.ID))
		if err != nil {
			return added, fmt.Errorf("pin target: %w", err)
		}
		if created {
			added++
		}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("added", added).
		Msg("Job targets populated")
	return added, nil
}

// pinTarget validates and pins one explicit target entity
func (s *Service) pinTarget(ctx context.Context, job *models.MatchingJob, template *models.MatchingTemplate, targetID string) error {
	target, err := s.storage.Entities().GetEntity(ctx, targetID)
	if err != nil {
		return fmt.Errorf("target entity not found: %w", err)
	}
	if target.WorkspaceID != job.WorkspaceID {
		return fmt.Errorf("target entity belongs to a different workspace")
	}
	if target.ID == job.SourceEntityID {
		return fmt.Errorf("source entity cannot be its own target")
	}
	if target.EntityTypeID != template.TargetEntityTypeID {
		return fmt.Errorf("target entity type does not match the template target type")
	}
	if _, err := s.storage.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, target.ID)); err != nil {
		return fmt.Errorf("pin target: %w", err)
	}
	return nil
}

// resolveTargetType returns the entity type to draw candidates from: the
// job's target_entity_type override (id or workspace slug) when present,
// otherwise the template's target type
func (s *Service) resolveTargetType(ctx context.Context, job *models.MatchingJob, template *models.MatchingTemplate) (string, error) {
	raw, ok := job.ConfigOverride["target_entity_type"].(string)
	if !ok || raw == "" {
		return template.TargetEntityTypeID, nil
	}

	if et, err := s.storage.Entities().GetEntityType(ctx, raw); err == nil {
		if et.WorkspaceID != job.WorkspaceID {
			return "", fmt.Errorf("target entity type belongs to a different workspace")
		}
		return et.ID, nil
	}
	et, err := s.storage.Entities().GetEntityTypeBySlug(ctx, job.WorkspaceID, raw)
	if err != nil {
		return "", fmt.Errorf("target entity type %q not found: %w", raw, err)
	}
	return et.ID, nil
}

func overrideTargetCount(override map[string]interface{}) int {
	switch v := override["target_count"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

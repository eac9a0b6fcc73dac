package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the matching job lifecycle state
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// MatchingJob is one attempted run of a template against a source entity.
// The override is merged over the template config when the job executes;
// execution attempts are tracked as MatchingJobRun records.
type MatchingJob struct {
	ID             string                 `json:"id"`
	WorkspaceID    string                 `json:"workspace_id" badgerhold:"index"`
	TemplateID     string                 `json:"template_id" badgerhold:"index"`
	SourceEntityID string                 `json:"source_entity_id" badgerhold:"index"`
	ConfigOverride map[string]interface{} `json:"config_override,omitempty"`

	Status       JobStatus `json:"status" badgerhold:"index"`
	ErrorMessage string    `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewMatchingJob creates a queued job for a template and source entity
func NewMatchingJob(workspaceID, templateID, sourceEntityID string, override map[string]interface{}) *MatchingJob {
	now := time.Now().UTC()
	return &MatchingJob{
		ID:             uuid.New().String(),
		WorkspaceID:    workspaceID,
		TemplateID:     templateID,
		SourceEntityID: sourceEntityID,
		ConfigOverride: override,
		Status:         JobStatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks required job fields
func (j *MatchingJob) Validate() error {
	if j.WorkspaceID == "" {
		return fmt.Errorf("job workspace is required")
	}
	if j.TemplateID == "" {
		return fmt.Errorf("job template is required")
	}
	if j.SourceEntityID == "" {
		return fmt.Errorf("job source entity is required")
	}
	return nil
}

// MarkRunning transitions the job to running, clearing any previous error
func (j *MatchingJob) MarkRunning() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.ErrorMessage = ""
	j.StartedAt = &now
	j.FinishedAt = nil
	j.UpdatedAt = now
}

// MarkComplete transitions the job to complete
func (j *MatchingJob) MarkComplete() {
	now := time.Now().UTC()
	j.Status = JobStatusComplete
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to failed with a bounded error message
func (j *MatchingJob) MarkFailed(reason string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = truncateMessage(reason, 1000)
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// IsTerminal reports whether the job reached a final state
func (j *MatchingJob) IsTerminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusFailed
}

// MatchingJobTarget pins a candidate entity to a job. Unique on (job, entity);
// targets are fixed before the run starts and not mutated by the pipeline.
type MatchingJobTarget struct {
	ID       string    `json:"id"`
	JobID    string    `json:"job_id" badgerhold:"index"`
	EntityID string    `json:"entity_id" badgerhold:"index"`
	AddedAt  time.Time `json:"added_at"`
}

// NewMatchingJobTarget pins an entity to a job
func NewMatchingJobTarget(jobID, entityID string) *MatchingJobTarget {
	return &MatchingJobTarget{
		ID:       uuid.New().String(),
		JobID:    jobID,
		EntityID: entityID,
		AddedAt:  time.Now().UTC(),
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the execution-attempt lifecycle state
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// MatchingJobRun records one execution attempt of a job. A job may accumulate
// several runs through retries; the latest run is authoritative. The config
// and plan snapshots freeze exactly what the attempt executed against.
type MatchingJobRun struct {
	ID     string    `json:"id"`
	JobID  string    `json:"job_id" badgerhold:"index"`
	Status RunStatus `json:"status" badgerhold:"index"`

	ConfigSnapshot map[string]interface{}   `json:"config_snapshot"`
	PlanSnapshot   []map[string]interface{} `json:"plan_snapshot"`

	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewMatchingJobRun creates a running attempt for a job
func NewMatchingJobRun(jobID string, configSnapshot map[string]interface{}, planSnapshot []map[string]interface{}) *MatchingJobRun {
	return &MatchingJobRun{
		ID:             uuid.New().String(),
		JobID:          jobID,
		Status:         RunStatusRunning,
		ConfigSnapshot: configSnapshot,
		PlanSnapshot:   planSnapshot,
		StartedAt:      time.Now().UTC(),
	}
}

// MarkComplete finalizes the run as complete
func (r *MatchingJobRun) MarkComplete() {
	now := time.Now().UTC()
	r.Status = RunStatusComplete
	r.FinishedAt = &now
}

// MarkFailed finalizes the run as failed, keeping the first 1000 characters
// of the message
func (r *MatchingJobRun) MarkFailed(reason string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.ErrorMessage = truncateMessage(reason, 1000)
	r.FinishedAt = &now
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchingJobUpdate is the append-only event log for a job. It is the
// canonical replay source for clients joining mid-flight: read history from
// here, then tail the live broadcast group.
type MatchingJobUpdate struct {
	ID        string                 `json:"id"`
	JobID     string                 `json:"job_id" badgerhold:"index"`
	RunID     string                 `json:"run_id,omitempty" badgerhold:"index"`
	EventType string                 `json:"event_type" badgerhold:"index"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewMatchingJobUpdate creates an update row for a job event
func NewMatchingJobUpdate(jobID, runID, eventType string, payload map[string]interface{}) *MatchingJobUpdate {
	return &MatchingJobUpdate{
		ID:        uuid.New().String(),
		JobID:     jobID,
		RunID:     runID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Task types routed by the worker pool
const (
	TaskRunMatchingJob = "run_matching_job"
	TaskIngestDocument = "ingest_document"
)

// TaskMessage is the structure stored in the queue.
// Keep it simple - just enough to route the work.
type TaskMessage struct {
	Type    string          `json:"type"`    // Task type for worker routing
	Payload json.RawMessage `json:"payload"` // Task-specific data (passed through)
}

// RunMatchingJobPayload carries the job to execute. Attempt counts completed
// tries; retries re-enqueue with the counter bumped.
type RunMatchingJobPayload struct {
	JobID   string `json:"job_id"`
	Attempt int    `json:"attempt,omitempty"`
}

// IngestDocumentPayload carries the document to fetch, chunk and index
type IngestDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// NewRunMatchingJobTask builds the queue message for a matching job
func NewRunMatchingJobTask(jobID string) (*TaskMessage, error) {
	payload, err := json.Marshal(RunMatchingJobPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return &TaskMessage{Type: TaskRunMatchingJob, Payload: payload}, nil
}

// NewIngestDocumentTask builds the queue message for a document ingest
func NewIngestDocumentTask(documentID string) (*TaskMessage, error) {
	payload, err := json.Marshal(IngestDocumentPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return &TaskMessage{Type: TaskIngestDocument, Payload: payload}, nil
}

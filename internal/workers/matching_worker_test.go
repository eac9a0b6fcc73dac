package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
)

type stubRunner struct {
	err   error
	calls int
}

func (r *stubRunner) Run(ctx context.Context, jobID string) error {
	r.calls++
	return r.err
}

type stubQueue struct {
	enqueued []*models.TaskMessage
	delays   []time.Duration
	err      error
}

func (q *stubQueue) Enqueue(ctx context.Context, msg *models.TaskMessage) error {
	return q.EnqueueWithDelay(ctx, msg, 0)
}

func (q *stubQueue) EnqueueWithDelay(ctx context.Context, msg *models.TaskMessage, delay time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, msg)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *stubQueue) Receive(ctx context.Context) (*interfaces.ReceivedTask, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (q *stubQueue) Extend(ctx context.Context, taskID string, duration time.Duration) error {
	return nil
}

func (q *stubQueue) Length(ctx context.Context) (int, error) { return len(q.enqueued), nil }
func (q *stubQueue) Close() error                            { return nil }

func runTask(t *testing.T, w *MatchingWorker, payload models.RunMatchingJobPayload) error {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return w.Handle(context.Background(), &models.TaskMessage{Type: models.TaskRunMatchingJob, Payload: data})
}

func TestMatchingWorkerSuccess(t *testing.T) {
	runner := &stubRunner{}
	queue := &stubQueue{}
	w := NewMatchingWorker(runner, queue, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, arbor.NewLogger())

	if err := runTask(t, w, models.RunMatchingJobPayload{JobID: "job-1"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if runner.calls != 1 || len(queue.enqueued) != 0 {
		t.Errorf("Expected one run and no retries, got %d runs, %d retries", runner.calls, len(queue.enqueued))
	}
}

func TestMatchingWorkerRetriesPipelineFailure(t *testing.T) {
	runner := &stubRunner{err: &matching.MatchingError{Err: errors.New("search timeout")}}
	queue := &stubQueue{}
	w := NewMatchingWorker(runner, queue, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, arbor.NewLogger())

	if err := runTask(t, w, models.RunMatchingJobPayload{JobID: "job-1"}); err != nil {
		t.Fatalf("Handle must ack after scheduling a retry, got %v", err)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("Expected 1 retry enqueued, got %d", len(queue.enqueued))
	}

	var retry models.RunMatchingJobPayload
	if err := json.Unmarshal(queue.enqueued[0].Payload, &retry); err != nil {
		t.Fatalf("Failed to decode retry payload: %v", err)
	}
	if retry.JobID != "job-1" || retry.Attempt != 1 {
		t.Errorf("Unexpected retry payload: %+v", retry)
	}
	if queue.delays[0] <= 0 {
		t.Errorf("Expected positive retry delay, got %v", queue.delays[0])
	}
}

func TestMatchingWorkerStopsAtBudget(t *testing.T) {
	runner := &stubRunner{err: &matching.MatchingError{Err: errors.New("still failing")}}
	queue := &stubQueue{}
	w := NewMatchingWorker(runner, queue, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, arbor.NewLogger())

	// Third attempt (attempt index 2) exhausts a budget of 3
	if err := runTask(t, w, models.RunMatchingJobPayload{JobID: "job-1", Attempt: 2}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(queue.enqueued) != 0 {
		t.Errorf("Expected no retry past the budget, got %d", len(queue.enqueued))
	}
}

func TestMatchingWorkerDoesNotRetryConfigurationErrors(t *testing.T) {
	runner := &stubRunner{err: &matching.ProviderConfigurationError{Provider: "language model", Err: errors.New("missing api key")}}
	queue := &stubQueue{}
	w := NewMatchingWorker(runner, queue, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, arbor.NewLogger())

	if err := runTask(t, w, models.RunMatchingJobPayload{JobID: "job-1"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(queue.enqueued) != 0 {
		t.Errorf("Configuration errors must not be retried, got %d retries", len(queue.enqueued))
	}
}

func TestMatchingWorkerReturnsErrorWhenRetryCannotBeScheduled(t *testing.T) {
	cause := &matching.MatchingError{Err: errors.New("transient")}
	runner := &stubRunner{err: cause}
	queue := &stubQueue{err: errors.New("queue closed")}
	w := NewMatchingWorker(runner, queue, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, arbor.NewLogger())

	if err := runTask(t, w, models.RunMatchingJobPayload{JobID: "job-1"}); err == nil {
		t.Fatal("Expected the original failure to surface when the retry cannot be enqueued")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

	for attempt := 1; attempt <= 6; attempt++ {
		delay := policy.Backoff(attempt)
		if delay < policy.BaseDelay && attempt > 1 {
			t.Errorf("Attempt %d delay %v below base", attempt, delay)
		}
		if delay > policy.MaxDelay {
			t.Errorf("Attempt %d delay %v above ceiling", attempt, delay)
		}
	}
}

var _ interfaces.QueueManager = (*stubQueue)(nil)

package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
)

// JobRunner executes one matching job end to end
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// RetryPolicy bounds task-level retries for matching jobs
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicyFrom parses the matching retry settings with defaults for
// missing or malformed values
func RetryPolicyFrom(cfg common.MatchingConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if d, err := time.ParseDuration(cfg.RetryBaseDelay); err == nil && d > 0 {
		policy.BaseDelay = d
	}
	if d, err := time.ParseDuration(cfg.RetryMaxDelay); err == nil && d > 0 {
		policy.MaxDelay = d
	}
	return policy
}

// Backoff returns the delay before the given attempt (1-based): exponential
// from the base with up to 25% jitter, capped at the ceiling
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// MatchingWorker handles run_matching_job tasks. Pipeline failures are
// retried by re-enqueueing with backoff until the attempt budget runs out;
// configuration problems and cancellations are terminal because retrying
// cannot fix them. The queue's own redelivery stays as a crash safety net.
type MatchingWorker struct {
	runner JobRunner
	queue  interfaces.QueueManager
	policy RetryPolicy
	logger arbor.ILogger
}

// NewMatchingWorker creates the matching task worker
func NewMatchingWorker(runner JobRunner, queue interfaces.QueueManager, policy RetryPolicy, logger arbor.ILogger) *MatchingWorker {
	return &MatchingWorker{
		runner: runner,
		queue:  queue,
		policy: policy,
		logger: logger,
	}
}

// Handle processes one run_matching_job task
func (w *MatchingWorker) Handle(ctx context.Context, msg *models.TaskMessage) error {
	var payload models.RunMatchingJobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode run_matching_job payload: %w", err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("run_matching_job payload has no job id")
	}

	attempt := payload.Attempt + 1
	logger := w.logger.WithCorrelationId(payload.JobID)

	err := w.runner.Run(ctx, payload.JobID)
	if err == nil {
		return nil
	}

	if !matching.IsMatchingError(err) {
		// Provider misconfiguration or cancellation: the job is already
		// marked failed, nothing a retry can change
		logger.Warn().
			Err(err).
			Str("job_id", payload.JobID).
			Msg("Matching job failed terminally")
		return nil
	}

	if attempt >= w.policy.MaxAttempts {
		logger.Error().
			Err(err).
			Str("job_id", payload.JobID).
			Int("attempt", attempt).
			Msg("Matching job failed, retry budget exhausted")
		return nil
	}

	delay := w.policy.Backoff(attempt)
	retryPayload, marshalErr := json.Marshal(models.RunMatchingJobPayload{
		JobID:   payload.JobID,
		Attempt: attempt,
	})
	if marshalErr != nil {
		return fmt.Errorf("encode retry payload: %w", marshalErr)
	}
	retry := &models.TaskMessage{Type: models.TaskRunMatchingJob, Payload: retryPayload}

	if enqErr := w.queue.EnqueueWithDelay(ctx, retry, delay); enqErr != nil {
		// Could not schedule the retry; surface the original failure so the
		// queue's redelivery gets another chance
		logger.Error().
			Err(enqErr).
			Str("job_id", payload.JobID).
			Msg("Failed to schedule matching job retry")
		return err
	}

	logger.Warn().
		Err(err).
		Str("job_id", payload.JobID).
		Int("attempt", attempt).
		Dur("retry_delay", delay).
		Msg("Matching job failed, retry scheduled")
	return nil
}

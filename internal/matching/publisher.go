package matching

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Event types emitted over the lifetime of a matching job
const (
	EventJobStatus        = "matching.job.status"
	EventJobCriteria      = "matching.job.criteria"
	EventSourceSnippets   = "matching.job.source_snippets"
	EventTargetSearch     = "matching.job.target.search"
	EventTargetEvaluation = "matching.job.target.evaluation"
	EventTargetCandidate  = "matching.job.target.candidate"
	EventMatchPersisted   = "matching.job.match.persisted"
)

// JobEvent is one typed progress record for a job
type JobEvent struct {
	JobID     string                 `json:"job_id"`
	RunID     string                 `json:"run_id,omitempty"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewJobEvent creates a timestamped event
func NewJobEvent(jobID, runID, eventType string, payload map[string]interface{}) JobEvent {
	return JobEvent{
		JobID:     jobID,
		RunID:     runID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// GroupName returns the per-job broadcast group: the job uuid as plain hex
func GroupName(jobID string) string {
	return "matching_job_" + strings.ReplaceAll(jobID, "-", "")
}

// Publisher emits typed job events. Every emission persists an immutable
// update row for replay; transport is best-effort and never fails the
// pipeline.
type Publisher interface {
	Publish(ctx context.Context, event JobEvent)
}

// BroadcastPublisher persists each event and forwards it to the event bus,
// where the websocket hub picks it up for the per-job group
type BroadcastPublisher struct {
	updates interfaces.UpdateStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewBroadcastPublisher creates the production publisher
func NewBroadcastPublisher(updates interfaces.UpdateStorage, events interfaces.EventService, logger arbor.ILogger) *BroadcastPublisher {
	return &BroadcastPublisher{
		updates: updates,
		events:  events,
		logger:  logger,
	}
}

// Publish stores the update row, then pushes the event to the broadcast
// layer. Failures on either side are logged, never raised.
func (p *BroadcastPublisher) Publish(ctx context.Context, event JobEvent) {
	update := models.NewMatchingJobUpdate(event.JobID, event.RunID, event.Type, event.Payload)
	update.CreatedAt = event.Timestamp
	if err := p.updates.AppendUpdate(ctx, update); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", event.JobID).
			Str("event_type", event.Type).
			Msg("Failed to persist job update")
	}

	if err := p.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventMatchingJobUpdate,
		Payload: update,
	}); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", event.JobID).
			Str("event_type", event.Type).
			Msg("Job event broadcast failed")
	}
}

// NullPublisher persists update rows without any transport. Used when no
// broadcast layer is wired, and in tests.
type NullPublisher struct {
	updates interfaces.UpdateStorage
	logger  arbor.ILogger
}

// NewNullPublisher creates a persist-only publisher
func NewNullPublisher(updates interfaces.UpdateStorage, logger arbor.ILogger) *NullPublisher {
	return &NullPublisher{updates: updates, logger: logger}
}

// Publish stores the update row and stops there
func (p *NullPublisher) Publish(ctx context.Context, event JobEvent) {
	update := models.NewMatchingJobUpdate(event.JobID, event.RunID, event.Type, event.Payload)
	update.CreatedAt = event.Timestamp
	if err := p.updates.AppendUpdate(ctx, update); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", event.JobID).
			Str("event_type", event.Type).
			Msg("Failed to persist job update")
	}
}

var (
	_ Publisher = (*BroadcastPublisher)(nil)
	_ Publisher = (*NullPublisher)(nil)
)

// statusPayload builds the matching.job.status payload
func statusPayload(status models.JobStatus, errorMessage string) map[string]interface{} {
	payload := map[string]interface{}{"status": string(status)}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	return payload
}

// criteriaPayload builds the matching.job.criteria payload
func criteriaPayload(plan *SearchPlan) map[string]interface{} {
	criteria := make([]interface{}, 0, plan.Size())
	for _, c := range plan.Criteria {
		criteria = append(criteria, map[string]interface{}{
			"id":                   c.ID,
			"label":                c.Label,
			"guidance":             c.Guidance,
			"weight":               c.Weight,
			"source_snippet_limit": c.SourceSnippetLimit,
			"target_snippet_limit": c.TargetSnippetLimit,
		})
	}
	return map[string]interface{}{"criteria": criteria}
}

// sourceSnippetsPayload builds the matching.job.source_snippets payload
func sourceSnippetsPayload(plan *SearchPlan, snippets map[string][]Hit) map[string]interface{} {
	counts := make(map[string]interface{}, plan.Size())
	for _, c := range plan.Criteria {
		counts[c.ID] = len(snippets[c.ID])
	}
	return map[string]interface{}{"snippet_counts": counts}
}

// targetSearchPayload builds the matching.job.target.search payload
func targetSearchPayload(summary *TargetSearchSummary) map[string]interface{} {
	counts := make(map[string]interface{})
	for _, hit := range summary.Hits {
		current, _ := counts[hit.Criterion.ID].(int)
		counts[hit.Criterion.ID] = current + 1
	}
	return map[string]interface{}{
		"target_id":   summary.Target.Entity.ID,
		"target_name": summary.Target.Entity.Name,
		"hit_counts":  counts,
		"total_hits":  len(summary.Hits),
	}
}

// targetEvaluationPayload builds the matching.job.target.evaluation payload
func targetEvaluationPayload(plan *SearchPlan, evaluation *TargetEvaluation) map[string]interface{} {
	criteria := make([]interface{}, 0, len(evaluation.Criteria))
	for _, ce := range evaluation.Criteria {
		criteria = append(criteria, map[string]interface{}{
			"criterion_id":    ce.CriterionID,
			"criterion_label": ce.CriterionLabel,
			"rating":          string(ce.Rating),
			"rating_value":    ce.Rating.Value(),
			"reason":          ce.Reason,
		})
	}
	return map[string]interface{}{
		"target_id":     evaluation.Target.Entity.ID,
		"target_name":   evaluation.Target.Entity.Name,
		"average_score": evaluation.AverageScore(),
		"coverage":      evaluation.Coverage(plan),
		"criteria":      criteria,
	}
}

// candidatePayload builds the matching.job.target.candidate payload
func candidatePayload(candidate *MatchCandidate) map[string]interface{} {
	return map[string]interface{}{
		"target_id":        candidate.Target.Entity.ID,
		"target_name":      candidate.Target.Entity.Name,
		"score":            candidate.AverageScore(),
		"search_hit_ratio": candidate.SearchHitRatio,
		"summary_reason":   candidate.SummaryReason(),
	}
}

// matchPersistedPayload builds the matching.job.match.persisted payload
func matchPersistedPayload(match *models.Match, targetName string, searchHitRatio float64) map[string]interface{} {
	return map[string]interface{}{
		"match_id":         match.ID,
		"target_id":        match.TargetEntityID,
		"target_name":      targetName,
		"rank":             match.Rank,
		"score":            match.Score,
		"search_hit_ratio": searchHitRatio,
	}
}

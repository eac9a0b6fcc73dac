package matching

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Recorder writes the immutable audit trail of one run: the run row itself,
// one row per search with its hits, and one row per target evaluation with
// per-criterion detail. Restarted jobs record fresh runs; rows are never
// mutated after the run finalizes.
type Recorder struct {
	runs   interfaces.MatchingRunStorage
	audits interfaces.MatchingAuditStorage
	run    *models.MatchingJobRun
	plan   *SearchPlan
	logger arbor.ILogger
}

// NewRecorder creates a recorder over the run and audit storages
func NewRecorder(runs interfaces.MatchingRunStorage, audits interfaces.MatchingAuditStorage, logger arbor.ILogger) *Recorder {
	return &Recorder{runs: runs, audits: audits, logger: logger}
}

// Start creates the run row with status running, freezing the full config
// snapshot and the plan snapshot
func (r *Recorder) Start(ctx context.Context, job *models.MatchingJob, plan *SearchPlan, configSnapshot map[string]interface{}) error {
	run := models.NewMatchingJobRun(job.ID, configSnapshot, plan.Snapshot())
	if err := r.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	r.run = run
	r.plan = plan

	r.logger.Info().
		Str("job_id", job.ID).
		Str("run_id", run.ID).
		Int("criteria", plan.Size()).
		Msg("Matching run started")

	return nil
}

// Run returns the active run row
func (r *Recorder) Run() *models.MatchingJobRun {
	return r.run
}

// RecordSearch writes one search log plus a hit row per resolved chunk,
// ranks assigned by 1-based position
func (r *Recorder) RecordSearch(ctx context.Context, criterionID string, queryType models.SearchQueryType, targetEntityID, query string, limit int, hits []Hit) error {
	log := models.NewMatchingSearchLog(r.run.ID, criterionID, queryType, targetEntityID, query, limit, len(hits))

	hitRows := make([]*models.MatchingSearchHitLog, len(hits))
	for i, hit := range hits {
		hitRows[i] = models.NewMatchingSearchHitLog(log.ID, i+1, hit.Chunk.ID, hit.Chunk.Text, hit.Score, hit.Metadata)
	}

	return r.audits.SaveSearchLog(ctx, log, hitRows)
}

// RecordEvaluation writes the per-target evaluation row and its per-criterion
// detail rows, prompts and responses verbatim. Upserts on (run, target).
func (r *Recorder) RecordEvaluation(ctx context.Context, evaluation *TargetEvaluation) error {
	log := models.NewMatchingEvaluationLog(
		r.run.ID,
		evaluation.Target.Entity.ID,
		evaluation.AverageScore(),
		evaluation.Coverage(r.plan),
		evaluation.Coverage(r.plan),
		evaluation.SummaryReason(),
	)

	details := make([]*models.MatchingEvaluationDetailLog, 0, len(evaluation.Criteria))
	for i, ce := range evaluation.Criteria {
		detail := models.NewMatchingEvaluationDetailLog(log.ID, i+1, ce.CriterionID, ce.CriterionLabel, string(ce.Rating), ce.Rating.Value(), ce.Reason)
		detail.RatingPrompt = ce.RatingPrompt
		detail.RatingResponse = ce.RatingResponse
		detail.ReasoningPrompt = ce.ReasoningPrompt
		detail.ReasoningResponse = ce.ReasoningResponse
		details = append(details, detail)
	}

	return r.audits.SaveEvaluationLog(ctx, log, details)
}

// FinalizeSuccess marks the run complete
func (r *Recorder) FinalizeSuccess(ctx context.Context) error {
	r.run.MarkComplete()
	if err := r.runs.SaveRun(ctx, r.run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	r.logger.Info().
		Str("run_id", r.run.ID).
		Msg("Matching run complete")

	return nil
}

// FinalizeFailure marks the run failed, keeping the first 1000 characters of
// the message
func (r *Recorder) FinalizeFailure(ctx context.Context, message string) error {
	r.run.MarkFailed(message)
	if err := r.runs.SaveRun(ctx, r.run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	r.logger.Warn().
		Str("run_id", r.run.ID).
		Str("error", r.run.ErrorMessage).
		Msg("Matching run failed")

	return nil
}

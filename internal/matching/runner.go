package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Runner drives one matching job end to end: state transitions, provider
// lifetimes, retrieval, evaluation, aggregation, match persistence, audit and
// events. One Runner instance serves all jobs; per-run state lives on the
// stack.
type Runner struct {
	storage   interfaces.StorageManager
	providers interfaces.MatchingProviderFactory
	publisher Publisher
	logger    arbor.ILogger
}

// NewRunner creates a job runner
func NewRunner(storage interfaces.StorageManager, providers interfaces.MatchingProviderFactory, publisher Publisher, logger arbor.ILogger) *Runner {
	return &Runner{
		storage:   storage,
		providers: providers,
		publisher: publisher,
		logger:    logger,
	}
}

// Run executes the matching job. Pipeline failures come back as
// *MatchingError so the task layer can retry; provider configuration
// problems and the duplicate-run guard do not trigger retries.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.storage.MatchingJobs().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load matching job: %w", err)
	}

	logger := r.logger.WithCorrelationId(jobID)

	// Duplicate-trigger guard: at-least-once delivery may hand the same job
	// to two workers; the second one backs off here
	if job.Status == models.JobStatusRunning {
		logger.Warn().Str("job_id", jobID).Msg("Job is already running, skipping duplicate execution")
		return nil
	}

	r.publishStatus(ctx, job, "")

	searcher, err := r.providers.NewSearcher(ctx, job.WorkspaceID)
	if err != nil {
		return r.failJob(ctx, job, nil, &ProviderConfigurationError{Provider: "vector searcher", Err: err}, logger)
	}
	defer searcher.Close()

	model, err := r.providers.NewLanguageModel(ctx)
	if err != nil {
		return r.failJob(ctx, job, nil, &ProviderConfigurationError{Provider: "language model", Err: err}, logger)
	}
	defer model.Close()

	job.MarkRunning()
	if err := r.storage.MatchingJobs().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	r.publishStatus(ctx, job, "")

	recorder := NewRecorder(r.storage.MatchingRuns(), r.storage.MatchingAudits(), logger)
	if err := r.execute(ctx, job, searcher, model, recorder, logger); err != nil {
		return r.failJob(ctx, job, recorder, err, logger)
	}

	job.MarkComplete()
	if err := r.storage.MatchingJobs().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("mark job complete: %w", err)
	}
	r.publishStatus(ctx, job, "")

	logger.Info().Str("job_id", jobID).Msg("Matching job complete")
	return nil
}

func (r *Runner) execute(ctx context.Context, job *models.MatchingJob, searcher interfaces.VectorSearcher, model interfaces.LanguageModel, recorder *Recorder, logger arbor.ILogger) error {
	loader := NewLoader(r.storage)
	jobCtx, err := loader.LoadJobContext(ctx, job.ID)
	if err != nil {
		return err
	}

	plan, err := BuildSearchPlan(jobCtx.Config)
	if err != nil {
		return err
	}

	r.writeBackCanonicalConfig(ctx, jobCtx, logger)

	if err := recorder.Start(ctx, job, plan, jobCtx.Config.ToMap()); err != nil {
		return err
	}
	runID := recorder.Run().ID

	r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventJobCriteria, criteriaPayload(plan)))

	coordinator := NewCoordinator(searcher, recorder, logger)

	sourceSnippets, err := coordinator.CollectSourceSnippets(ctx, jobCtx, plan)
	if err != nil {
		return err
	}
	r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventSourceSnippets, sourceSnippetsPayload(plan, sourceSnippets)))

	summaries, err := coordinator.CollectTargetMatches(ctx, jobCtx, plan)
	if err != nil {
		return err
	}

	evaluator := NewEvaluator(model, logger)
	evaluations := make([]*TargetEvaluation, 0, len(summaries))
	for _, summary := range summaries {
		r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventTargetSearch, targetSearchPayload(summary)))

		evaluation, err := evaluator.EvaluateTarget(ctx, plan, sourceSnippets, summary)
		if err != nil {
			return err
		}
		if err := recorder.RecordEvaluation(ctx, evaluation); err != nil {
			return err
		}
		r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventTargetEvaluation, targetEvaluationPayload(plan, evaluation)))

		evaluations = append(evaluations, evaluation)
	}

	candidates := BuildCandidates(plan, evaluations)
	for _, candidate := range candidates {
		r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventTargetCandidate, candidatePayload(candidate)))
	}

	if err := r.persistMatches(ctx, job, runID, plan, candidates); err != nil {
		return err
	}

	return recorder.FinalizeSuccess(ctx)
}

// persistMatches atomically replaces the job's matches with the new ranked
// set and emits match.persisted events in rank order
func (r *Runner) persistMatches(ctx context.Context, job *models.MatchingJob, runID string, plan *SearchPlan, candidates []*MatchCandidate) error {
	ranked := make([]*MatchCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AverageScore() > ranked[j].AverageScore()
	})

	entries := make([]interfaces.MatchEntry, 0, len(ranked))
	for i, candidate := range ranked {
		match := models.NewMatch(job.ID, job.SourceEntityID, candidate.Target.Entity.ID, candidate.AverageScore(), candidate.SummaryReason(), i+1)

		features := make([]*models.MatchFeature, 0, len(candidate.Evaluation.Criteria)+1)
		position := 0
		for _, ce := range candidate.Evaluation.Criteria {
			position++
			value := float64(ce.Rating.Value())
			text := fmt.Sprintf("%s: %s", ce.CriterionLabel, ce.Reason)
			features = append(features, models.NewMatchFeature(match.ID, position, "criterion:"+ce.CriterionID, &value, text))
		}
		position++
		ratio := candidate.SearchHitRatio
		features = append(features, models.NewMatchFeature(match.ID, position, "search_hit_ratio", &ratio, ""))

		entries = append(entries, interfaces.MatchEntry{Match: match, Features: features})
	}

	if err := r.storage.Matches().ReplaceMatches(ctx, job.ID, entries); err != nil {
		return fmt.Errorf("persist matches: %w", err)
	}

	for i, entry := range entries {
		r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventMatchPersisted,
			matchPersistedPayload(entry.Match, ranked[i].Target.Entity.Name, ranked[i].SearchHitRatio)))
	}

	return nil
}

// writeBackCanonicalConfig persists the normalized template config (and the
// normalized override when one exists) so readers always see the canonical
// shape. Write-back failures do not fail the run.
func (r *Runner) writeBackCanonicalConfig(ctx context.Context, jobCtx *JobContext, logger arbor.ILogger) {
	if normalized, err := NormalizeMatchingConfig(jobCtx.Template.Config, ContextTemplate); err == nil {
		if err := r.storage.Templates().UpdateTemplateConfig(ctx, jobCtx.Template.ID, normalized.ToMap()); err != nil {
			logger.Warn().Err(err).Str("template_id", jobCtx.Template.ID).Msg("Failed to write back canonical template config")
		}
	}
	if len(jobCtx.Job.ConfigOverride) > 0 {
		if normalized, err := NormalizeMatchingConfig(jobCtx.Job.ConfigOverride, ContextOverride); err == nil {
			if err := r.storage.MatchingJobs().UpdateJobConfigOverride(ctx, jobCtx.Job.ID, normalized.ToMap()); err != nil {
				logger.Warn().Err(err).Str("job_id", jobCtx.Job.ID).Msg("Failed to write back canonical config override")
			}
		}
	}
}

// failJob finalizes the run (when one started), marks the job failed and
// publishes the terminal status. The returned error keeps its type so the
// task layer can decide about retries.
func (r *Runner) failJob(ctx context.Context, job *models.MatchingJob, recorder *Recorder, cause error, logger arbor.ILogger) error {
	message := cause.Error()
	if errors.Is(cause, context.Canceled) {
		message = "cancelled"
	}

	if recorder != nil && recorder.Run() != nil {
		if err := recorder.FinalizeFailure(ctx, message); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to finalize run")
		}
	}

	job.MarkFailed(message)
	if err := r.storage.MatchingJobs().SaveJob(ctx, job); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}
	r.publishStatus(ctx, job, job.ErrorMessage)

	logger.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Msg("Matching job failed")

	if IsProviderConfigurationError(cause) || errors.Is(cause, context.Canceled) {
		return cause
	}
	return &MatchingError{Err: cause}
}

func (r *Runner) publishStatus(ctx context.Context, job *models.MatchingJob, errorMessage string) {
	runID := ""
	r.publisher.Publish(ctx, NewJobEvent(job.ID, runID, EventJobStatus, statusPayload(job.Status, errorMessage)))
}

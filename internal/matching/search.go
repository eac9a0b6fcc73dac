package matching

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Hit is a resolved retrieval result: the local chunk plus the provider score
type Hit struct {
	Chunk    *models.DocumentChunk
	Score    float64
	Metadata map[string]interface{}
}

// CriterionHit associates a target hit with the criterion that retrieved it
type CriterionHit struct {
	Criterion Criterion
	Chunk     *models.DocumentChunk
	Score     float64
}

// TargetSearchSummary flattens one target's retrieval across all criteria,
// preserving the criterion association for the evaluator
type TargetSearchSummary struct {
	Target *EntityBundle
	Hits   []CriterionHit
}

// HitsForCriterion returns the hits retrieved for one criterion id
func (s *TargetSearchSummary) HitsForCriterion(criterionID string) []CriterionHit {
	var hits []CriterionHit
	for _, hit := range s.Hits {
		if hit.Criterion.ID == criterionID {
			hits = append(hits, hit)
		}
	}
	return hits
}

// Coordinator issues the per-criterion vector searches for a run. Scope is
// always enforced with an entity filter; every search is recorded as an
// audit row before its hits feed evaluation.
type Coordinator struct {
	searcher interfaces.VectorSearcher
	recorder *Recorder
	logger   arbor.ILogger
}

// NewCoordinator creates a search coordinator for one run
func NewCoordinator(searcher interfaces.VectorSearcher, recorder *Recorder, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		searcher: searcher,
		recorder: recorder,
		logger:   logger,
	}
}

// CollectSourceSnippets runs one search per criterion against the source
// entity, keyed by criterion id
func (c *Coordinator) CollectSourceSnippets(ctx context.Context, jobCtx *JobContext, plan *SearchPlan) (map[string][]Hit, error) {
	snippets := make(map[string][]Hit, plan.Size())

	for _, criterion := range plan.Criteria {
		hits, err := c.search(ctx, jobCtx, criterion, models.SearchQueryTypeSource, jobCtx.Source.Entity, criterion.SourceSnippetLimit)
		if err != nil {
			return nil, fmt.Errorf("source search for criterion %s: %w", criterion.ID, err)
		}
		snippets[criterion.ID] = hits
	}

	return snippets, nil
}

// CollectTargetMatches runs one search per target per criterion, flattening
// the results into per-target summaries in plan order
func (c *Coordinator) CollectTargetMatches(ctx context.Context, jobCtx *JobContext, plan *SearchPlan) ([]*TargetSearchSummary, error) {
	summaries := make([]*TargetSearchSummary, 0, len(jobCtx.Targets))

	for _, target := range jobCtx.Targets {
		summary := &TargetSearchSummary{Target: target}

		for _, criterion := range plan.Criteria {
			hits, err := c.search(ctx, jobCtx, criterion, models.SearchQueryTypeTarget, target.Entity, criterion.TargetSnippetLimit)
			if err != nil {
				return nil, fmt.Errorf("target search for criterion %s on entity %s: %w", criterion.ID, target.Entity.ID, err)
			}
			for _, hit := range hits {
				summary.Hits = append(summary.Hits, CriterionHit{
					Criterion: criterion,
					Chunk:     hit.Chunk,
					Score:     hit.Score,
				})
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (c *Coordinator) search(ctx context.Context, jobCtx *JobContext, criterion Criterion, queryType models.SearchQueryType, entity *models.Entity, limit int) ([]Hit, error) {
	filters := interfaces.SearchFilters{EntityID: entity.ID}

	rawHits, err := c.searcher.Search(ctx, jobCtx.WorkspaceID(), criterion.Prompt, limit, filters)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rawHits))
	for _, raw := range rawHits {
		chunk := jobCtx.ResolveChunk(raw)
		if chunk == nil {
			// Unresolved hits are dropped, never counted as failures
			c.logger.Debug().
				Str("vector_id", raw.ID).
				Str("criterion_id", criterion.ID).
				Msg("Dropping unresolvable search hit")
			continue
		}
		hits = append(hits, Hit{Chunk: chunk, Score: raw.Score, Metadata: raw.Metadata})
	}

	targetEntityID := ""
	if queryType == models.SearchQueryTypeTarget {
		targetEntityID = entity.ID
	}
	if err := c.recorder.RecordSearch(ctx, criterion.ID, queryType, targetEntityID, criterion.Prompt, limit, hits); err != nil {
		return nil, fmt.Errorf("record search: %w", err)
	}

	return hits, nil
}

package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

const noSourceContext = "(no source context found)"

// CriterionEvaluation is the outcome of the two-step exchange for one
// criterion: the parsed rating plus every prompt and raw response verbatim
// for the audit trail
type CriterionEvaluation struct {
	CriterionID    string
	CriterionLabel string
	Rating         models.Rating
	Reason         string

	RatingPrompt      string
	RatingResponse    string
	ReasoningPrompt   string
	ReasoningResponse string
}

// TargetEvaluation aggregates the rated criteria for one target. Criteria
// with zero target hits are absent; that is how coverage drops below 1.0.
type TargetEvaluation struct {
	Target   *EntityBundle
	Criteria []CriterionEvaluation
}

// AverageScore is the arithmetic mean of the numeric rating values across
// rated criteria, 0.0 when nothing was rated
func (e *TargetEvaluation) AverageScore() float64 {
	if len(e.Criteria) == 0 {
		return 0.0
	}
	total := 0
	for _, c := range e.Criteria {
		total += c.Rating.Value()
	}
	return float64(total) / float64(len(e.Criteria))
}

// Coverage is the fraction of plan criteria that received a rating
func (e *TargetEvaluation) Coverage(plan *SearchPlan) float64 {
	if plan.Size() == 0 {
		return 0.0
	}
	rated := 0
	for _, c := range e.Criteria {
		if _, ok := plan.CriterionByID(c.CriterionID); ok {
			rated++
		}
	}
	return float64(rated) / float64(plan.Size())
}

// SummaryReason joins the non-empty per-criterion reasons with newlines
func (e *TargetEvaluation) SummaryReason() string {
	var reasons []string
	for _, c := range e.Criteria {
		if strings.TrimSpace(c.Reason) != "" {
			reasons = append(reasons, c.Reason)
		}
	}
	return strings.Join(reasons, "\n")
}

// Evaluator asks the language model to rate and then justify each criterion
// that retrieved at least one target snippet
type Evaluator struct {
	model  interfaces.LanguageModel
	logger arbor.ILogger
}

// NewEvaluator creates an evaluator for one run
func NewEvaluator(model interfaces.LanguageModel, logger arbor.ILogger) *Evaluator {
	return &Evaluator{model: model, logger: logger}
}

// EvaluateTarget walks the plan in order and rates every criterion with
// target hits. Criteria with zero hits are skipped, not rated BAD.
func (ev *Evaluator) EvaluateTarget(ctx context.Context, plan *SearchPlan, sourceSnippets map[string][]Hit, summary *TargetSearchSummary) (*TargetEvaluation, error) {
	evaluation := &TargetEvaluation{Target: summary.Target}

	for _, criterion := range plan.Criteria {
		targetHits := summary.HitsForCriterion(criterion.ID)
		if len(targetHits) == 0 {
			continue
		}

		sourceBlock := snippetBlock(sourceSnippets[criterion.ID], criterion.SourceSnippetLimit)
		if sourceBlock == "" {
			sourceBlock = noSourceContext
		}
		targetBlock := criterionHitBlock(targetHits, criterion.TargetSnippetLimit)

		ratingPrompt := buildRatingPrompt(criterion, sourceBlock, targetBlock)
		ratingResponse, err := ev.model.StructuredMatchReview(ctx, ratingPrompt)
		if err != nil {
			return nil, fmt.Errorf("rating call for criterion %s: %w", criterion.ID, err)
		}
		rating := models.ParseRating(ratingResponse)

		reasoningPrompt := buildReasoningPrompt(criterion, rating, sourceBlock, targetBlock)
		reasoningResponse, err := ev.model.StructuredMatchReview(ctx, reasoningPrompt)
		if err != nil {
			return nil, fmt.Errorf("reasoning call for criterion %s: %w", criterion.ID, err)
		}

		ev.logger.Debug().
			Str("criterion_id", criterion.ID).
			Str("rating", string(rating)).
			Msg("Criterion evaluated")

		evaluation.Criteria = append(evaluation.Criteria, CriterionEvaluation{
			CriterionID:       criterion.ID,
			CriterionLabel:    criterion.Label,
			Rating:            rating,
			Reason:            strings.TrimSpace(reasoningResponse),
			RatingPrompt:      ratingPrompt,
			RatingResponse:    ratingResponse,
			ReasoningPrompt:   reasoningPrompt,
			ReasoningResponse: reasoningResponse,
		})
	}

	return evaluation, nil
}

func buildRatingPrompt(criterion Criterion, sourceBlock, targetBlock string) string {
	var b strings.Builder
	b.WriteString("You are rating whether a candidate text matches the search goal.\n")
	fmt.Fprintf(&b, "Criterion: %s\n", criterion.Label)
	if criterion.Guidance != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", criterion.Guidance)
	}
	b.WriteString("Valid ratings: GOOD, NEUTRAL, BAD.\n")
	b.WriteString("Source context:\n")
	b.WriteString(sourceBlock)
	b.WriteString("\nTarget context:\n")
	b.WriteString(targetBlock)
	b.WriteString("\nRespond with a single rating token.")
	return b.String()
}

func buildReasoningPrompt(criterion Criterion, rating models.Rating, sourceBlock, targetBlock string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The criterion %q was rated %s.\n", criterion.Label, rating)
	if criterion.Guidance != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", criterion.Guidance)
	}
	b.WriteString("Source context:\n")
	b.WriteString(sourceBlock)
	b.WriteString("\nTarget context:\n")
	b.WriteString(targetBlock)
	b.WriteString("\nExplain the rating in 1-2 sentences.")
	return b.String()
}

func snippetBlock(hits []Hit, limit int) string {
	var texts []string
	for i, hit := range hits {
		if i >= limit {
			break
		}
		if text := strings.TrimSpace(hit.Chunk.Text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

func criterionHitBlock(hits []CriterionHit, limit int) string {
	var texts []string
	for i, hit := range hits {
		if i >= limit {
			break
		}
		if text := strings.TrimSpace(hit.Chunk.Text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

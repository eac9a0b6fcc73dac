package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchQueryType distinguishes source-context from target retrieval
type SearchQueryType string

const (
	SearchQueryTypeSource SearchQueryType = "source"
	SearchQueryTypeTarget SearchQueryType = "target"
)

// MatchingSearchLog is the audit row for one vector search issued by a run.
// Hits are stored as child MatchingSearchHitLog rows with 1-based ranks.
type MatchingSearchLog struct {
	ID             string          `json:"id"`
	RunID          string          `json:"run_id" badgerhold:"index"`
	CriterionID    string          `json:"criterion_id"`
	QueryType      SearchQueryType `json:"query_type" badgerhold:"index"`
	TargetEntityID string          `json:"target_entity_id,omitempty" badgerhold:"index"` // Empty for source searches
	Query          string          `json:"query"`
	Limit          int             `json:"limit"`
	ReturnedCount  int             `json:"returned_count"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewMatchingSearchLog creates a search audit row
func NewMatchingSearchLog(runID, criterionID string, queryType SearchQueryType, targetEntityID, query string, limit, returned int) *MatchingSearchLog {
	return &MatchingSearchLog{
		ID:             uuid.New().String(),
		RunID:          runID,
		CriterionID:    criterionID,
		QueryType:      queryType,
		TargetEntityID: targetEntityID,
		Query:          query,
		Limit:          limit,
		ReturnedCount:  returned,
		CreatedAt:      time.Now().UTC(),
	}
}

// MatchingSearchHitLog snapshots one retrieved chunk. The chunk text is copied
// so the audit trail stays readable after re-ingestion rewrites chunks.
type MatchingSearchHitLog struct {
	ID          string                 `json:"id"`
	SearchLogID string                 `json:"search_log_id" badgerhold:"index"`
	Rank        int                    `json:"rank"` // 1-based position in the result list
	ChunkID     string                 `json:"chunk_id,omitempty"`
	ChunkText   string                 `json:"chunk_text"`
	Score       float64                `json:"score"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewMatchingSearchHitLog creates a hit row under a search log
func NewMatchingSearchHitLog(searchLogID string, rank int, chunkID, chunkText string, score float64, metadata map[string]interface{}) *MatchingSearchHitLog {
	return &MatchingSearchHitLog{
		ID:          uuid.New().String(),
		SearchLogID: searchLogID,
		Rank:        rank,
		ChunkID:     chunkID,
		ChunkText:   chunkText,
		Score:       score,
		Metadata:    metadata,
	}
}

// MatchingEvaluationLog is the per-target evaluation audit row for a run.
// Unique on (run, target).
type MatchingEvaluationLog struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id" badgerhold:"index"`
	TargetEntityID string    `json:"target_entity_id" badgerhold:"index"`
	AverageScore   float64   `json:"average_score"`
	Coverage       float64   `json:"coverage"`
	SearchHitRatio float64   `json:"search_hit_ratio"`
	SummaryReason  string    `json:"summary_reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMatchingEvaluationLog creates the per-target evaluation row
func NewMatchingEvaluationLog(runID, targetEntityID string, averageScore, coverage, searchHitRatio float64, summaryReason string) *MatchingEvaluationLog {
	return &MatchingEvaluationLog{
		ID:             uuid.New().String(),
		RunID:          runID,
		TargetEntityID: targetEntityID,
		AverageScore:   averageScore,
		Coverage:       coverage,
		SearchHitRatio: searchHitRatio,
		SummaryReason:  summaryReason,
		CreatedAt:      time.Now().UTC(),
	}
}

// MatchingEvaluationDetailLog preserves one criterion's rating exchange
// verbatim, prompts and raw responses included. Position records the
// criterion's place in the search plan so listings keep plan order.
type MatchingEvaluationDetailLog struct {
	ID              string `json:"id"`
	EvaluationLogID string `json:"evaluation_log_id" badgerhold:"index"`
	Position        int    `json:"position"`
	CriterionID     string `json:"criterion_id"`
	CriterionLabel  string `json:"criterion_label"`
	RatingName      string `json:"rating_name"`
	RatingValue     int    `json:"rating_value"`
	Reason          string `json:"reason"`

	RatingPrompt      string `json:"rating_prompt"`
	RatingResponse    string `json:"rating_response"`
	ReasoningPrompt   string `json:"reasoning_prompt"`
	ReasoningResponse string `json:"reasoning_response"`
}

// NewMatchingEvaluationDetailLog creates a per-criterion detail row. The
// prompt and response fields are set by the caller after the exchange.
func NewMatchingEvaluationDetailLog(evaluationLogID string, position int, criterionID, criterionLabel, ratingName string, ratingValue int, reason string) *MatchingEvaluationDetailLog {
	return &MatchingEvaluationDetailLog{
		ID:              uuid.New().String(),
		EvaluationLogID: evaluationLogID,
		Position:        position,
		CriterionID:     criterionID,
		CriterionLabel:  criterionLabel,
		RatingName:      ratingName,
		RatingValue:     ratingValue,
		Reason:          reason,
	}
}

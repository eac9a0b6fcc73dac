package models

import (
	"time"

	"github.com/google/uuid"
)

// Match is a final ranked result for a job. Rows for a job are replaced
// atomically when a run succeeds; ranks are contiguous from 1 by descending
// score. Unique on (job, target).
type Match struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id" badgerhold:"index"`
	SourceEntityID string    `json:"source_entity_id" badgerhold:"index"`
	TargetEntityID string    `json:"target_entity_id" badgerhold:"index"`
	Score          float64   `json:"score"`
	Explanation    string    `json:"explanation"`
	Rank           int       `json:"rank"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMatch creates a ranked match row
func NewMatch(jobID, sourceEntityID, targetEntityID string, score float64, explanation string, rank int) *Match {
	return &Match{
		ID:             uuid.New().String(),
		JobID:          jobID,
		SourceEntityID: sourceEntityID,
		TargetEntityID: targetEntityID,
		Score:          score,
		Explanation:    explanation,
		Rank:           rank,
		CreatedAt:      time.Now().UTC(),
	}
}

// MatchFeature captures one evaluated dimension of a match: a criterion
// rating ("criterion:<id>") or the derived search hit ratio. Unique on
// (match, label). Position keeps features in plan order for display.
type MatchFeature struct {
	ID           string   `json:"id"`
	MatchID      string   `json:"match_id" badgerhold:"index"`
	Position     int      `json:"position"`
	Label        string   `json:"label"`
	ValueNumeric *float64 `json:"value_numeric,omitempty"`
	ValueText    string   `json:"value_text,omitempty"`
}

// NewMatchFeature creates a feature row for a match
func NewMatchFeature(matchID string, position int, label string, numeric *float64, text string) *MatchFeature {
	return &MatchFeature{
		ID:           uuid.New().String(),
		MatchID:      matchID,
		Position:     position,
		Label:        label,
		ValueNumeric: numeric,
		ValueText:    text,
	}
}

package models

import "strings"

// Rating is the discrete match quality returned by the language model
type Rating string

const (
	RatingGood    Rating = "GOOD"
	RatingNeutral Rating = "NEUTRAL"
	RatingBad     Rating = "BAD"
)

// ParseRating maps a free-form model response onto a rating. The parser is
// deliberately tolerant: trim, uppercase, then substring search. Anything
// that mentions GOOD wins, then NEUTRAL; everything else is BAD, including
// responses that name no rating at all.
func ParseRating(response string) Rating {
	normalized := strings.ToUpper(strings.TrimSpace(response))
	if strings.Contains(normalized, string(RatingGood)) {
		return RatingGood
	}
	if strings.Contains(normalized, string(RatingNeutral)) {
		return RatingNeutral
	}
	return RatingBad
}

// Value returns the numeric score for averaging: GOOD=3, NEUTRAL=2, BAD=1
func (r Rating) Value() int {
	switch r {
	case RatingGood:
		return 3
	case RatingNeutral:
		return 2
	default:
		return 1
	}
}

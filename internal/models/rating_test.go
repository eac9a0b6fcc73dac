package models

import "testing"

func TestParseRating(t *testing.T) {
	tests := []struct {
		response string
		want     Rating
	}{
		{"GOOD", RatingGood},
		{"good", RatingGood},
		{"  Good.\n", RatingGood},
		{"ggood", RatingGood},
		{"maybe good I think", RatingGood},
		{"NEUTRAL", RatingNeutral},
		{"leaning neutral here", RatingNeutral},
		{"BAD", RatingBad},
		{"kinda", RatingBad},
		{"", RatingBad},
		{"no rating at all", RatingBad},
		// GOOD wins over NEUTRAL when both appear
		{"not neutral, good", RatingGood},
	}

	for _, tt := range tests {
		if got := ParseRating(tt.response); got != tt.want {
			t.Errorf("ParseRating(%q) = %s, want %s", tt.response, got, tt.want)
		}
	}
}

func TestRatingValues(t *testing.T) {
	if RatingGood.Value() != 3 || RatingNeutral.Value() != 2 || RatingBad.Value() != 1 {
		t.Errorf("Unexpected rating values: %d/%d/%d", RatingGood.Value(), RatingNeutral.Value(), RatingBad.Value())
	}
	if Rating("UNKNOWN").Value() != 1 {
		t.Error("Unknown ratings must score as BAD")
	}
}

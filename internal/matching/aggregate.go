package matching

// MatchCandidate is an in-memory scored target prior to persistence as a
// Match row
type MatchCandidate struct {
	Target         *EntityBundle
	Evaluation     *TargetEvaluation
	SearchHitRatio float64
}

// BuildCandidates wraps the evaluated targets into candidates. The hit ratio
// is the evaluation's coverage against the plan; weights are carried on the
// criteria but do not enter the score.
func BuildCandidates(plan *SearchPlan, evaluations []*TargetEvaluation) []*MatchCandidate {
	candidates := make([]*MatchCandidate, 0, len(evaluations))
	for _, evaluation := range evaluations {
		candidates = append(candidates, &MatchCandidate{
			Target:         evaluation.Target,
			Evaluation:     evaluation,
			SearchHitRatio: evaluation.Coverage(plan),
		})
	}
	return candidates
}

// AverageScore is the candidate's evaluation mean
func (c *MatchCandidate) AverageScore() float64 {
	return c.Evaluation.AverageScore()
}

// SummaryReason joins the candidate's non-empty criterion reasons
func (c *MatchCandidate) SummaryReason() string {
	return c.Evaluation.SummaryReason()
}

// ToPayload renders the transport shape used by events and the API
func (c *MatchCandidate) ToPayload() map[string]interface{} {
	criteria := make([]interface{}, 0, len(c.Evaluation.Criteria))
	for _, ce := range c.Evaluation.Criteria {
		criteria = append(criteria, map[string]interface{}{
			"criterion_id":    ce.CriterionID,
			"criterion_label": ce.CriterionLabel,
			"rating":          string(ce.Rating),
			"rating_value":    ce.Rating.Value(),
			"reason":          ce.Reason,
		})
	}
	return map[string]interface{}{
		"target_id":        c.Target.Entity.ID,
		"target_name":      c.Target.Entity.Name,
		"average_score":    c.AverageScore(),
		"search_hit_ratio": c.SearchHitRatio,
		"summary_reason":   c.SummaryReason(),
		"criteria":         criteria,
	}
}

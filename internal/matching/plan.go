package matching

// SearchPlan is the ordered list of criteria a run executes. Order mirrors
// the configuration exactly; retrieval, evaluation and audit rows all follow
// plan order.
type SearchPlan struct {
	Criteria []Criterion
}

// BuildSearchPlan derives the plan from a canonical configuration
func BuildSearchPlan(cfg *MatchingConfiguration) (*SearchPlan, error) {
	if cfg == nil || len(cfg.SearchCriteria) == 0 {
		return nil, &PlanningError{Message: "no search criteria remain after normalization"}
	}

	criteria := make([]Criterion, len(cfg.SearchCriteria))
	copy(criteria, cfg.SearchCriteria)

	return &SearchPlan{Criteria: criteria}, nil
}

// Snapshot renders the plan for the run audit row
func (p *SearchPlan) Snapshot() []map[string]interface{} {
	snapshot := make([]map[string]interface{}, len(p.Criteria))
	for i := range p.Criteria {
		snapshot[i] = p.Criteria[i].ToMap()
	}
	return snapshot
}

// CriterionByID returns the plan criterion with the given id
func (p *SearchPlan) CriterionByID(id string) (*Criterion, bool) {
	for i := range p.Criteria {
		if p.Criteria[i].ID == id {
			return &p.Criteria[i], true
		}
	}
	return nil, false
}

// Size returns the number of plan criteria
func (p *SearchPlan) Size() int {
	return len(p.Criteria)
}

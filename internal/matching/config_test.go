package matching

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func criterionMap(overrides map[string]interface{}) map[string]interface{} {
	m := map[string]interface{}{
		"label":  "Team fit",
		"prompt": "Does the candidate fit the team?",
	}
	for k, v := range overrides {
		m[k] = v
	}
	return m
}

func templateConfig(criteria ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, len(criteria))
	for i := range criteria {
		list[i] = criteria[i]
	}
	return map[string]interface{}{"search_criteria": list}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg, err := NormalizeMatchingConfig(templateConfig(criterionMap(nil)), ContextTemplate)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(cfg.SearchCriteria) != 1 {
		t.Fatalf("Expected 1 criterion, got %d", len(cfg.SearchCriteria))
	}
	c := cfg.SearchCriteria[0]
	if c.ID != "team-fit" {
		t.Errorf("Expected slugified id team-fit, got %q", c.ID)
	}
	if c.Weight != 1.0 {
		t.Errorf("Expected default weight 1.0, got %v", c.Weight)
	}
	if c.SourceSnippetLimit != 3 || c.TargetSnippetLimit != 3 {
		t.Errorf("Expected default snippet limits 3/3, got %d/%d", c.SourceSnippetLimit, c.TargetSnippetLimit)
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	cfg, err := NormalizeMatchingConfig(templateConfig(map[string]interface{}{
		"name":  "Skills",
		"query": "Relevant skills?",
	}), ContextTemplate)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	c := cfg.SearchCriteria[0]
	if c.Label != "Skills" {
		t.Errorf("Expected name alias to fill label, got %q", c.Label)
	}
	if c.Prompt != "Relevant skills?" {
		t.Errorf("Expected query alias to fill prompt, got %q", c.Prompt)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]interface{}
		context  string
		contains string
	}{
		{
			name:     "template without criteria",
			config:   map[string]interface{}{},
			context:  ContextTemplate,
			contains: "at least one criterion",
		},
		{
			name:     "missing label",
			config:   templateConfig(map[string]interface{}{"prompt": "p"}),
			context:  ContextTemplate,
			contains: "missing a label",
		},
		{
			name:     "missing prompt",
			config:   templateConfig(map[string]interface{}{"label": "Fit"}),
			context:  ContextTemplate,
			contains: "missing a prompt",
		},
		{
			name:     "zero weight",
			config:   templateConfig(criterionMap(map[string]interface{}{"weight": 0.0})),
			context:  ContextTemplate,
			contains: "greater than zero",
		},
		{
			name:     "snippet limit too large",
			config:   templateConfig(criterionMap(map[string]interface{}{"source_snippet_limit": 11})),
			context:  ContextTemplate,
			contains: "between 1 and 10",
		},
		{
			name: "duplicate ids",
			config: templateConfig(
				criterionMap(map[string]interface{}{"id": "fit"}),
				criterionMap(map[string]interface{}{"id": "fit"}),
			),
			context:  ContextTemplate,
			contains: "more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeMatchingConfig(tt.config, tt.context)
			if err == nil {
				t.Fatal("Expected a configuration error")
			}
			if !IsConfigurationError(err) {
				t.Fatalf("Expected ConfigurationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Error %q does not mention %q", err.Error(), tt.contains)
			}
			if !strings.Contains(err.Error(), tt.context) {
				t.Errorf("Error %q does not name the context %q", err.Error(), tt.context)
			}
		})
	}
}

func TestNormalizeMaxCriteria(t *testing.T) {
	criteria := make([]map[string]interface{}, 21)
	for i := range criteria {
		criteria[i] = criterionMap(map[string]interface{}{"id": fmt.Sprintf("c%d", i)})
	}
	_, err := NormalizeMatchingConfig(templateConfig(criteria...), ContextTemplate)
	if err == nil || !strings.Contains(err.Error(), "maximum is 20") {
		t.Fatalf("Expected maximum criteria error, got %v", err)
	}
}

func TestNormalizeIDFallback(t *testing.T) {
	cfg, err := NormalizeMatchingConfig(templateConfig(map[string]interface{}{
		"label":  "???",
		"prompt": "p",
	}), ContextTemplate)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got := cfg.SearchCriteria[0].ID; got != "criterion-1" {
		t.Errorf("Expected positional fallback id, got %q", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := templateConfig(
		criterionMap(map[string]interface{}{"weight": 2, "guidance": "prefer seniors"}),
		map[string]interface{}{"name": "Location", "description": "same city", "target_snippet_limit": 5},
	)
	raw["scoring_strategy"] = "pairwise"

	once, err := NormalizeMatchingConfig(raw, ContextTemplate)
	if err != nil {
		t.Fatalf("First normalize failed: %v", err)
	}
	twice, err := NormalizeMatchingConfig(once.ToMap(), ContextTemplate)
	if err != nil {
		t.Fatalf("Second normalize failed: %v", err)
	}

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Normalization is not idempotent:\nfirst:  %+v\nsecond: %+v", once, twice)
	}
}

func TestMergeOverridePrecedence(t *testing.T) {
	template := &MatchingConfiguration{
		ScoringStrategy: "mean",
		Description:     "base",
		SearchCriteria:  []Criterion{{ID: "a"}, {ID: "b"}},
	}

	// Empty override criteria keep the template criteria (scenario from the
	// job-override merge rules)
	override := &MatchingConfiguration{ScoringStrategy: "pairwise"}
	effective := MergeConfigs(template, override)

	if effective.ScoringStrategy != "pairwise" {
		t.Errorf("Expected override scoring strategy, got %q", effective.ScoringStrategy)
	}
	if effective.Description != "base" {
		t.Errorf("Expected template description fallback, got %q", effective.Description)
	}
	if len(effective.SearchCriteria) != 2 || effective.SearchCriteria[0].ID != "a" {
		t.Errorf("Expected template criteria to survive empty override, got %+v", effective.SearchCriteria)
	}

	// Non-empty override criteria replace the template's
	override = &MatchingConfiguration{SearchCriteria: []Criterion{{ID: "c"}}}
	effective = MergeConfigs(template, override)
	if len(effective.SearchCriteria) != 1 || effective.SearchCriteria[0].ID != "c" {
		t.Errorf("Expected override criteria to replace template, got %+v", effective.SearchCriteria)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Team fit", "team-fit"},
		{"  C++ & Go  ", "c-go"},
		{"ALLCAPS", "allcaps"},
		{"???", ""},
		{"a--b", "a-b"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildSearchPlanPreservesOrder(t *testing.T) {
	cfg := &MatchingConfiguration{SearchCriteria: []Criterion{{ID: "z"}, {ID: "a"}, {ID: "m"}}}
	plan, err := BuildSearchPlan(cfg)
	if err != nil {
		t.Fatalf("BuildSearchPlan failed: %v", err)
	}
	for i, want := range []string{"z", "a", "m"} {
		if plan.Criteria[i].ID != want {
			t.Errorf("Criterion %d = %q, want %q", i, plan.Criteria[i].ID, want)
		}
	}
}

func TestBuildSearchPlanEmpty(t *testing.T) {
	_, err := BuildSearchPlan(&MatchingConfiguration{})
	if err == nil || !IsPlanningError(err) {
		t.Fatalf("Expected PlanningError, got %v", err)
	}
}

package matching

import (
	"fmt"
	"strconv"
	"strings"
)

// Contexts named in ConfigurationError messages so callers can tell which
// side of the merge carried the bad field
const (
	ContextTemplate = "Template"
	ContextOverride = "Job override"
)

const (
	defaultSnippetLimit = 3
	minSnippetLimit     = 1
	maxSnippetLimit     = 10
	maxCriteria         = 20
)

// Criterion is one search/scoring objective inside a matching configuration.
// All fields are canonical after normalization; downstream stages never see
// raw maps.
type Criterion struct {
	ID                 string  `json:"id"`
	Label              string  `json:"label"`
	Prompt             string  `json:"prompt"`
	Guidance           string  `json:"guidance,omitempty"`
	Weight             float64 `json:"weight"`
	SourceSnippetLimit int     `json:"source_snippet_limit"`
	TargetSnippetLimit int     `json:"target_snippet_limit"`
}

// ToMap returns the canonical transport shape of the criterion
func (c *Criterion) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":                   c.ID,
		"label":                c.Label,
		"prompt":               c.Prompt,
		"weight":               c.Weight,
		"source_snippet_limit": c.SourceSnippetLimit,
		"target_snippet_limit": c.TargetSnippetLimit,
	}
	if c.Guidance != "" {
		m["guidance"] = c.Guidance
	}
	return m
}

// MatchingConfiguration is the canonical form of a template config or a
// merged template + override pair
type MatchingConfiguration struct {
	ScoringStrategy string      `json:"scoring_strategy,omitempty"`
	Description     string      `json:"description,omitempty"`
	SearchCriteria  []Criterion `json:"search_criteria"`
}

// ToMap returns the canonical map written back to storage so UIs always see
// the same shape. Normalizing the result again is a no-op.
func (c *MatchingConfiguration) ToMap() map[string]interface{} {
	criteria := make([]interface{}, len(c.SearchCriteria))
	for i := range c.SearchCriteria {
		criteria[i] = c.SearchCriteria[i].ToMap()
	}
	m := map[string]interface{}{
		"search_criteria": criteria,
	}
	if c.ScoringStrategy != "" {
		m["scoring_strategy"] = c.ScoringStrategy
	}
	if c.Description != "" {
		m["description"] = c.Description
	}
	return m
}

// NormalizeMatchingConfig validates and canonicalizes a free-form config map.
// Template configs must carry at least one criterion; override configs may be
// empty (the template criteria then apply). The context string names the
// config's origin in error messages.
func NormalizeMatchingConfig(raw map[string]interface{}, context string) (*MatchingConfiguration, error) {
	cfg := &MatchingConfiguration{
		ScoringStrategy: stringField(raw, "scoring_strategy"),
		Description:     stringField(raw, "description"),
	}

	rawCriteria := listField(raw, "search_criteria")
	if len(rawCriteria) == 0 {
		if context == ContextTemplate {
			return nil, &ConfigurationError{Context: context, Message: "search_criteria must contain at least one criterion"}
		}
		cfg.SearchCriteria = []Criterion{}
		return cfg, nil
	}
	if len(rawCriteria) > maxCriteria {
		return nil, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("search_criteria holds %d criteria, maximum is %d", len(rawCriteria), maxCriteria),
		}
	}

	seen := make(map[string]bool, len(rawCriteria))
	criteria := make([]Criterion, 0, len(rawCriteria))
	for i, item := range rawCriteria {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ConfigurationError{
				Context: context,
				Message: fmt.Sprintf("criterion %d is not an object", i+1),
			}
		}

		criterion, err := normalizeCriterion(entry, i, context)
		if err != nil {
			return nil, err
		}

		if seen[criterion.ID] {
			return nil, &ConfigurationError{
				Context: context,
				Message: fmt.Sprintf("criterion id %q appears more than once", criterion.ID),
			}
		}
		seen[criterion.ID] = true
		criteria = append(criteria, *criterion)
	}

	cfg.SearchCriteria = criteria
	return cfg, nil
}

func normalizeCriterion(entry map[string]interface{}, index int, context string) (*Criterion, error) {
	label := firstString(entry, "label", "name")
	if label == "" {
		return nil, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("criterion %d is missing a label", index+1),
		}
	}

	prompt := firstString(entry, "prompt", "query", "description")
	if prompt == "" {
		return nil, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("criterion %q is missing a prompt", label),
		}
	}

	weight := 1.0
	if v, present := entry["weight"]; present {
		parsed, ok := asFloat(v)
		if !ok {
			return nil, &ConfigurationError{
				Context: context,
				Message: fmt.Sprintf("criterion %q has a non-numeric weight", label),
			}
		}
		weight = parsed
	}
	if weight <= 0 {
		return nil, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("criterion %q weight must be greater than zero", label),
		}
	}

	sourceLimit, err := snippetLimit(entry, "source_snippet_limit", label, context)
	if err != nil {
		return nil, err
	}
	targetLimit, err := snippetLimit(entry, "target_snippet_limit", label, context)
	if err != nil {
		return nil, err
	}

	id := firstString(entry, "id", "key")
	if id == "" {
		id = Slugify(label)
	}
	if id == "" {
		id = fmt.Sprintf("criterion-%d", index+1)
	}

	return &Criterion{
		ID:                 id,
		Label:              label,
		Prompt:             prompt,
		Guidance:           stringField(entry, "guidance"),
		Weight:             weight,
		SourceSnippetLimit: sourceLimit,
		TargetSnippetLimit: targetLimit,
	}, nil
}

func snippetLimit(entry map[string]interface{}, field, label, context string) (int, error) {
	v, present := entry[field]
	if !present {
		return defaultSnippetLimit, nil
	}
	limit, ok := asInt(v)
	if !ok {
		return 0, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("criterion %q has a non-numeric %s", label, field),
		}
	}
	if limit < minSnippetLimit || limit > maxSnippetLimit {
		return 0, &ConfigurationError{
			Context: context,
			Message: fmt.Sprintf("criterion %q %s must be between %d and %d", label, field, minSnippetLimit, maxSnippetLimit),
		}
	}
	return limit, nil
}

// MergeConfigs computes the effective configuration. Override criteria
// replace template criteria only when non-empty; scoring strategy and
// description fall back to the template when the override leaves them blank.
func MergeConfigs(template, override *MatchingConfiguration) *MatchingConfiguration {
	if override == nil {
		merged := *template
		return &merged
	}

	effective := &MatchingConfiguration{
		ScoringStrategy: override.ScoringStrategy,
		Description:     override.Description,
		SearchCriteria:  override.SearchCriteria,
	}
	if effective.ScoringStrategy == "" {
		effective.ScoringStrategy = template.ScoringStrategy
	}
	if effective.Description == "" {
		effective.Description = template.Description
	}
	if len(effective.SearchCriteria) == 0 {
		effective.SearchCriteria = template.SearchCriteria
	}
	return effective
}

// EffectiveConfiguration normalizes the template config and the optional
// override, then merges them
func EffectiveConfiguration(templateConfig, overrideConfig map[string]interface{}) (*MatchingConfiguration, error) {
	template, err := NormalizeMatchingConfig(templateConfig, ContextTemplate)
	if err != nil {
		return nil, err
	}

	if len(overrideConfig) == 0 {
		return template, nil
	}

	override, err := NormalizeMatchingConfig(overrideConfig, ContextOverride)
	if err != nil {
		return nil, err
	}

	return MergeConfigs(template, override), nil
}

// Slugify turns a label into an id: lowercase, alphanumerics kept, runs of
// anything else collapsed to single hyphens
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

func listField(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []interface{}:
		return v
	case []map[string]interface{}:
		list := make([]interface{}, len(v))
		for i := range v {
			list[i] = v[i]
		}
		return list
	default:
		return nil
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case float32:
		if n != float32(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		return parsed, err == nil
	default:
		return 0, false
	}
}

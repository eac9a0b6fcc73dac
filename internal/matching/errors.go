// Package matching implements the matching pipeline: configuration
// normalization, search-plan construction, scoped vector retrieval, two-step
// LLM evaluation, candidate aggregation, audit persistence, event publishing
// and job lifecycle management.
package matching

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a bad or missing criterion field. It is raised
// at validation time, never inside a run. Context names where the offending
// configuration came from ("Template" or "Job override").
type ConfigurationError struct {
	Context string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Message)
	}
	return e.Message
}

// PlanningError reports an empty plan after normalization. Unreachable when
// validation ran first, kept as a distinct type for the runner boundary.
type PlanningError struct {
	Message string
}

func (e *PlanningError) Error() string {
	return e.Message
}

// ProviderConfigurationError reports a missing vector searcher or language
// model. Fatal at runner entry; never retried.
type ProviderConfigurationError struct {
	Provider string
	Err      error
}

func (e *ProviderConfigurationError) Error() string {
	return fmt.Sprintf("%s provider is not available: %v", e.Provider, e.Err)
}

func (e *ProviderConfigurationError) Unwrap() error {
	return e.Err
}

// MatchingError wraps any failure surfaced by a run: transient provider
// errors, persistence failures, cancellation. The runner converts pipeline
// errors to this type at its boundary; the task layer retries on it.
type MatchingError struct {
	Stage string
	Err   error
}

func (e *MatchingError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("matching failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("matching failed: %v", e.Err)
}

func (e *MatchingError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsPlanningError reports whether err is a PlanningError
func IsPlanningError(err error) bool {
	var target *PlanningError
	return errors.As(err, &target)
}

// IsProviderConfigurationError reports whether err is a ProviderConfigurationError
func IsProviderConfigurationError(err error) bool {
	var target *ProviderConfigurationError
	return errors.As(err, &target)
}

// IsMatchingError reports whether err is a MatchingError
func IsMatchingError(err error) bool {
	var target *MatchingError
	return errors.As(err, &target)
}

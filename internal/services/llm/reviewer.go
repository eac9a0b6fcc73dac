package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"golang.org/x/time/rate"
)

// Reviewer implements the LanguageModel interface on top of the provider
// factory. A rate limiter spaces calls per the provider's configured
// interval so batch evaluation stays inside free-tier quotas.
type Reviewer struct {
	factory *ProviderFactory
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  arbor.ILogger
}

// NewReviewer creates a language model bound to the configured default
// provider. An explicit model string (possibly provider-prefixed) overrides
// the provider default.
func NewReviewer(factory *ProviderFactory, model string, logger arbor.ILogger) *Reviewer {
	provider := factory.DetectProvider(model)
	if model == "" {
		model = factory.GetDefaultModel(provider)
	}

	var interval time.Duration
	var timeout time.Duration
	switch provider {
	case ProviderClaude:
		interval = common.ParseDurationOr(factory.claudeConfig.RateLimit, time.Second)
		timeout = common.ParseDurationOr(factory.claudeConfig.Timeout, 2*time.Minute)
	default:
		interval = common.ParseDurationOr(factory.geminiConfig.RateLimit, 4*time.Second)
		timeout = common.ParseDurationOr(factory.geminiConfig.Timeout, 2*time.Minute)
	}

	return &Reviewer{
		factory: factory,
		model:   model,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		timeout: timeout,
		logger:  logger,
	}
}

// StructuredMatchReview sends one prompt and returns the raw completion
// text. Rating and reasoning prompts both go through here; parsing is the
// caller's concern.
func (r *Reviewer) StructuredMatchReview(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.factory.GenerateContent(callCtx, &ContentRequest{
		Prompt: prompt,
		Model:  r.model,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Close releases the underlying provider clients
func (r *Reviewer) Close() error {
	return r.factory.Close()
}

var _ interfaces.LanguageModel = (*Reviewer)(nil)

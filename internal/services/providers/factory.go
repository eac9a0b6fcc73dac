// Package providers builds the per-run vector searcher and language model
// used by matching jobs. Instances are constructed fresh for every run and
// closed when the run exits; only the vector index itself is shared.
package providers

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/services/embeddings"
	"github.com/ternarybob/comparo/internal/services/llm"
	"github.com/ternarybob/comparo/internal/services/vector"
)

// Factory implements the MatchingProviderFactory contract over the shared
// vector service and the configured LLM providers
type Factory struct {
	config *common.Config
	vector *vector.Service
	logger arbor.ILogger
}

// NewFactory creates the matching provider factory
func NewFactory(config *common.Config, vectorService *vector.Service, logger arbor.ILogger) *Factory {
	return &Factory{
		config: config,
		vector: vectorService,
		logger: logger,
	}
}

// NewSearcher builds a workspace-scoped searcher with its own embedding
// client. Fails fast when the embedding provider is not configured.
func (f *Factory) NewSearcher(ctx context.Context, workspaceID string) (interfaces.VectorSearcher, error) {
	if f.vector == nil {
		return nil, fmt.Errorf("vector service is not configured")
	}
	if f.config.Embedding.Provider == "openai" && f.config.Embedding.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is not configured")
	}

	llmFactory := llm.NewProviderFactory(&f.config.LLM, &f.config.Gemini, &f.config.Claude, f.logger)
	embedder, err := embeddings.NewProvider(&f.config.Embedding, llmFactory, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	return vector.NewSearcher(f.vector.Index(), embedder, workspaceID, f.config.Vector.OverfetchFactor, f.logger), nil
}

// NewLanguageModel builds a reviewer on a fresh provider client. Fails fast
// when the configured provider has no API key.
func (f *Factory) NewLanguageModel(ctx context.Context) (interfaces.LanguageModel, error) {
	switch f.config.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		if f.config.Claude.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is not configured")
		}
	default:
		if f.config.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is not configured")
		}
	}

	llmFactory := llm.NewProviderFactory(&f.config.LLM, &f.config.Gemini, &f.config.Claude, f.logger)
	return llm.NewReviewer(llmFactory, "", f.logger), nil
}

var _ interfaces.MatchingProviderFactory = (*Factory)(nil)

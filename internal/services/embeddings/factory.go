package embeddings

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/services/llm"
)

// NewProvider creates the configured embedding provider. "openai" covers any
// OpenAI-compatible endpoint; "gemini" reuses the LLM factory's client.
func NewProvider(cfg *common.EmbeddingConfig, llmFactory *llm.ProviderFactory, logger arbor.ILogger) (interfaces.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbedder(cfg, logger)
	case "gemini":
		return NewGeminiEmbedder(cfg, llmFactory, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

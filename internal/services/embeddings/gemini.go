package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/services/llm"
	"google.golang.org/genai"
)

// GeminiEmbedder generates embeddings with the Gemini API through the shared
// provider factory, so the chat and embedding paths reuse one client.
type GeminiEmbedder struct {
	factory   *llm.ProviderFactory
	model     string
	dimension int
	timeout   time.Duration
	logger    arbor.ILogger
}

var _ interfaces.EmbeddingProvider = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini-backed embedding provider
func NewGeminiEmbedder(cfg *common.EmbeddingConfig, factory *llm.ProviderFactory, logger arbor.ILogger) (*GeminiEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	return &GeminiEmbedder{
		factory:   factory,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   common.ParseDurationOr(cfg.Timeout, 30*time.Second),
		logger:    logger,
	}, nil
}

// Embed generates embeddings for the given texts in one API call
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := e.factory.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	config := &genai.EmbedContentConfig{}
	if e.dimension > 0 {
		dim := int32(e.dimension)
		config.OutputDimensionality = &dim
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := client.Models.EmbedContent(reqCtx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = NormalizeVector(emb.Values)
	}

	e.logger.Debug().
		Int("texts", len(texts)).
		Int("dimension", len(vectors[0])).
		Msg("Generated embeddings")

	return vectors, nil
}

// EmbedQuery embeds a single query string
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// ModelName returns the embedding model identifier
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// Dimension returns the embedding dimension
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// Close is a no-op; the shared factory owns the client
func (e *GeminiEmbedder) Close() error {
	return nil
}

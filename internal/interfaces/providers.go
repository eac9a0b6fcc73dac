package interfaces

import (
	"context"
)

// SearchFilters scope a vector search. EntityID is mandatory in practice:
// the coordinator always sets it so retrieval never crosses entities.
type SearchFilters struct {
	EntityID string
}

// VectorHit is one retrieved vector-store entry. ID is the vector-store id;
// Metadata carries enough provenance (chunk_id, document_id, chunk_index) to
// resolve the local chunk even when ids drift.
type VectorHit struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// VectorSearcher retrieves scoped snippets for a query. Implementations must
// honor the entity filter exactly; limit is an upper bound. Searchers are
// built per job run and closed on exit.
type VectorSearcher interface {
	Search(ctx context.Context, workspaceID, query string, limit int, filters SearchFilters) ([]VectorHit, error)
	Close() error
}

// LanguageModel answers one structured match-review prompt with free-form
// text. The evaluator is robust to noise in the response. Models are built
// per job run and closed on exit.
type LanguageModel interface {
	StructuredMatchReview(ctx context.Context, prompt string) (string, error)
	Close() error
}

// MatchingProviderFactory builds per-run provider instances for the job
// runner. Both constructors fail fast when the underlying service is not
// configured.
type MatchingProviderFactory interface {
	NewSearcher(ctx context.Context, workspaceID string) (VectorSearcher, error)
	NewLanguageModel(ctx context.Context) (LanguageModel, error)
}

// EmbeddingProvider generates vector embeddings
type EmbeddingProvider interface {
	// Embed generates embeddings for a batch of texts, order-preserving
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Get model information
	ModelName() string
	Dimension() int

	// Close releases provider resources
	Close() error
}

// VectorIndex is the in-process vector store fed by ingestion and queried by
// the searcher. IDs are vector-store ids (strings); metadata is stored next
// to each vector for post-search filtering and chunk resolution.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]interface{}) error
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Save(path string) error
	Close() error
}

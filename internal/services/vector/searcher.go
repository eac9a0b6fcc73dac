package vector

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
)

// Searcher answers scoped snippet queries: embed the query, over-fetch from
// the shared index, then post-filter on the metadata stored with each vector.
// The entity filter is enforced exactly; the workspace id narrows results
// when vectors carry one. Searchers are built per job run; Close releases
// the per-run embedder but never the shared index.
type Searcher struct {
	index       interfaces.VectorIndex
	embedder    interfaces.EmbeddingProvider
	workspaceID string
	overfetch   int
	logger      arbor.ILogger
}

// NewSearcher creates a searcher bound to a workspace
func NewSearcher(index interfaces.VectorIndex, embedder interfaces.EmbeddingProvider, workspaceID string, overfetch int, logger arbor.ILogger) *Searcher {
	if overfetch < 1 {
		overfetch = 1
	}
	return &Searcher{
		index:       index,
		embedder:    embedder,
		workspaceID: workspaceID,
		overfetch:   overfetch,
		logger:      logger,
	}
}

// Search embeds the query and returns up to limit hits scoped by the filters
func (s *Searcher) Search(ctx context.Context, workspaceID, query string, limit int, filters interfaces.SearchFilters) ([]interfaces.VectorHit, error) {
	if limit <= 0 {
		return []interfaces.VectorHit{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so post-filtering still fills the limit when the index
	// holds many entities
	candidates, err := s.index.Search(ctx, vector, limit*s.overfetch)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	hits := make([]interfaces.VectorHit, 0, limit)
	for _, hit := range candidates {
		if !s.matchesScope(hit.Metadata, workspaceID, filters) {
			continue
		}
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}

	s.logger.Debug().
		Str("entity_id", filters.EntityID).
		Int("candidates", len(candidates)).
		Int("returned", len(hits)).
		Msg("Vector search completed")

	return hits, nil
}

func (s *Searcher) matchesScope(metadata map[string]interface{}, workspaceID string, filters interfaces.SearchFilters) bool {
	if filters.EntityID != "" {
		if entityID, _ := metadata["entity_id"].(string); entityID != filters.EntityID {
			return false
		}
	}
	if workspaceID != "" {
		// Workspace scoping only applies when the vector recorded one
		if stored, ok := metadata["workspace_id"].(string); ok && stored != "" && stored != workspaceID {
			return false
		}
	}
	return true
}

// Close releases the per-run embedder
func (s *Searcher) Close() error {
	if s.embedder != nil {
		return s.embedder.Close()
	}
	return nil
}

var _ interfaces.VectorSearcher = (*Searcher)(nil)

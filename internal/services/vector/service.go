package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Service owns the shared vector index: ingestion feeds chunks through it,
// the scheduler snapshots it, and matching runs search it through per-run
// Searcher instances.
type Service struct {
	index  *Index
	config *common.VectorConfig
	logger arbor.ILogger
}

// NewService creates the vector service and loads any existing snapshot
func NewService(cfg *common.VectorConfig, dimension int, logger arbor.ILogger) (*Service, error) {
	index := NewIndex(cfg, dimension, logger)
	if err := index.Load(cfg.IndexPath); err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	return &Service{
		index:  index,
		config: cfg,
		logger: logger,
	}, nil
}

// Index exposes the underlying index for searcher construction
func (s *Service) Index() interfaces.VectorIndex {
	return s.index
}

// IndexChunks assigns vector-store ids to the chunks and adds their vectors
// with scoping metadata. The caller persists the chunks afterwards so the
// assigned ids survive.
func (s *Service) IndexChunks(ctx context.Context, workspaceID, entityID string, chunks []*models.DocumentChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	metadata := make([]map[string]interface{}, len(chunks))
	for i, chunk := range chunks {
		if chunk.VectorStoreID == "" {
			chunk.VectorStoreID = uuid.New().String()
		}
		ids[i] = chunk.VectorStoreID
		metadata[i] = map[string]interface{}{
			"chunk_id":     chunk.ID,
			"document_id":  chunk.DocumentID,
			"chunk_index":  chunk.ChunkIndex,
			"entity_id":    entityID,
			"workspace_id": workspaceID,
		}
	}

	if err := s.index.Add(ctx, ids, vectors, metadata); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	s.logger.Debug().
		Str("entity_id", entityID).
		Int("chunks", len(chunks)).
		Msg("Chunks indexed")

	return nil
}

// DeindexChunks removes the vectors of replaced or deleted chunks
func (s *Service) DeindexChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.VectorStoreID != "" {
			ids = append(ids, chunk.VectorStoreID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.index.Delete(ctx, ids)
}

// Snapshot persists the index to its configured path
func (s *Service) Snapshot() error {
	return s.index.Save(s.config.IndexPath)
}

// Count returns the number of live vectors
func (s *Service) Count() int {
	return s.index.Count()
}

// Close snapshots and releases the index
func (s *Service) Close() error {
	if err := s.index.Save(s.config.IndexPath); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save vector index on shutdown")
	}
	return s.index.Close()
}

package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/services/vector"
	"golang.org/x/sync/errgroup"
)

// Service runs the document ingestion pipeline: fetch, extract, chunk, embed
// and index. Documents move pending -> in_progress -> completed or failed;
// chunks are replaced atomically and the vector index is kept in step.
type Service struct {
	storage   interfaces.StorageManager
	vectors   *vector.Service
	embedder  interfaces.EmbeddingProvider
	fetcher   *Fetcher
	extractor *Extractor
	chunker   *Chunker
	batchSize int
	parallel  int
	logger    arbor.ILogger
}

// NewService creates the ingest service. The embedder is long-lived and
// shared across ingests; it may be nil when no embedding provider is
// configured, in which case ingestion fails fast with a clear error.
func NewService(
	storage interfaces.StorageManager,
	vectors *vector.Service,
	embedder interfaces.EmbeddingProvider,
	ingestCfg *common.IngestConfig,
	embeddingCfg *common.EmbeddingConfig,
	logger arbor.ILogger,
) *Service {
	batchSize := embeddingCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	parallel := embeddingCfg.Concurrency
	if parallel <= 0 {
		parallel = 1
	}

	return &Service{
		storage:   storage,
		vectors:   vectors,
		embedder:  embedder,
		fetcher:   NewFetcher(ingestCfg, logger),
		extractor: NewExtractor(logger),
		chunker:   NewChunker(ingestCfg.ChunkSize, ingestCfg.ChunkOverlap),
		batchSize: batchSize,
		parallel:  parallel,
		logger:    logger,
	}
}

// IngestDocument runs the full pipeline for one document. Failures mark the
// document failed with the reason captured; the previous chunk set stays in
// place so a failed re-ingest never leaves the entity without content.
func (s *Service) IngestDocument(ctx context.Context, documentID string) error {
	doc, err := s.storage.Documents().GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	logger := s.logger.WithCorrelationId(documentID)

	entity, err := s.storage.Entities().GetEntity(ctx, doc.EntityID)
	if err != nil {
		return fmt.Errorf("load document entity: %w", err)
	}

	doc.MarkScrapeStarted()
	if err := s.storage.Documents().SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark document in progress: %w", err)
	}

	if err := s.ingest(ctx, doc, entity, logger); err != nil {
		doc.MarkScrapeFailed(err.Error())
		if saveErr := s.storage.Documents().SaveDocument(ctx, doc); saveErr != nil {
			logger.Error().Err(saveErr).Msg("Failed to mark document failed")
		}
		logger.Warn().
			Err(err).
			Str("document_id", doc.ID).
			Msg("Document ingest failed")
		return err
	}

	logger.Info().
		Str("document_id", doc.ID).
		Str("entity_id", doc.EntityID).
		Msg("Document ingested")
	return nil
}

func (s *Service) ingest(ctx context.Context, doc *models.Document, entity *models.Entity, logger arbor.ILogger) error {
	if s.embedder == nil {
		return fmt.Errorf("no embedding provider configured")
	}

	body := doc.Body
	if doc.SourceURL != "" {
		fetched, err := s.fetcher.Fetch(ctx, doc.SourceURL)
		if err != nil {
			return err
		}
		body, err = s.extractor.Extract(fetched, doc.SourceURL)
		if err != nil {
			return err
		}
		doc.ContentType = fetched.ContentType
	}
	if body == "" {
		return fmt.Errorf("document has no content")
	}

	texts := s.chunker.Chunk(body)
	if len(texts) == 0 {
		return fmt.Errorf("document produced no chunks")
	}

	chunks := make([]*models.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.NewDocumentChunk(doc.ID, i, text)
	}

	vectors, err := s.embedChunks(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := s.vectors.IndexChunks(ctx, entity.WorkspaceID, entity.ID, chunks, vectors); err != nil {
		return err
	}

	removed, err := s.storage.Documents().ReplaceChunks(ctx, doc.ID, chunks)
	if err != nil {
		// Persisting failed: take the fresh vectors back out so the index
		// matches the stored chunk set
		if cleanupErr := s.vectors.DeindexChunks(ctx, chunks); cleanupErr != nil {
			logger.Warn().Err(cleanupErr).Msg("Failed to clean up vectors after chunk save failure")
		}
		return fmt.Errorf("replace chunks: %w", err)
	}

	if err := s.vectors.DeindexChunks(ctx, removed); err != nil {
		logger.Warn().
			Err(err).
			Int("chunks", len(removed)).
			Msg("Failed to de-index replaced chunks")
	}

	doc.MarkScrapeCompleted(body)
	if err := s.storage.Documents().SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}

	logger.Debug().
		Int("chunks", len(chunks)).
		Int("replaced", len(removed)).
		Msg("Chunks embedded and indexed")
	return nil
}

// embedChunks embeds all chunk texts in batches with bounded parallelism,
// preserving chunk order in the result
func (s *Service) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			batch, err := s.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding count mismatch: want %d, got %d", end-start, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

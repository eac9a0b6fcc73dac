package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ListDocumentsByEntity(ctx context.Context, entityID string) ([]*models.Document, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("EntityID").Eq(entityID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) ListDocumentsByStatus(ctx context.Context, status models.ScrapeStatus, limit int) ([]*models.Document, error) {
	query := badgerhold.Where("ScrapeStatus").Eq(status).SortBy("UpdatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []models.Document
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list documents by status: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) DeleteDocument(ctx context.Context, id string) error {
	return deleteDocumentTree(s.db.Store(), id)
}

func (s *DocumentStorage) CountDocuments(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Document{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(count), nil
}

// ReplaceChunks swaps a document's chunk set in one Badger transaction so
// readers never observe a partially chunked document. The removed chunks are
// returned for vector de-indexing.
func (s *DocumentStorage) ReplaceChunks(ctx context.Context, documentID string, chunks []*models.DocumentChunk) ([]*models.DocumentChunk, error) {
	store := s.db.Store()

	var removed []*models.DocumentChunk
	err := store.Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.DocumentChunk
		if err := store.TxFind(txn, &existing, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
			return fmt.Errorf("failed to find existing chunks: %w", err)
		}

		removed = removed[:0]
		for i := range existing {
			if err := store.TxDelete(txn, existing[i].ID, &models.DocumentChunk{}); err != nil {
				return fmt.Errorf("failed to delete chunk: %w", err)
			}
			removed = append(removed, &existing[i])
		}

		for _, chunk := range chunks {
			if err := store.TxInsert(txn, chunk.ID, chunk); err != nil {
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("document_id", documentID).
		Int("removed", len(removed)).
		Int("inserted", len(chunks)).
		Msg("Replaced document chunks")

	return removed, nil
}

func (s *DocumentStorage) GetChunks(ctx context.Context, documentID string) ([]*models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	if err := s.db.Store().Find(&chunks, badgerhold.Where("DocumentID").Eq(documentID).SortBy("ChunkIndex")); err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	result := make([]*models.DocumentChunk, len(chunks))
	for i := range chunks {
		result[i] = &chunks[i]
	}
	return result, nil
}

func (s *DocumentStorage) GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	if err := s.db.Store().Get(id, &chunk); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("chunk not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &chunk, nil
}

func (s *DocumentStorage) GetChunkByVectorStoreID(ctx context.Context, vectorStoreID string) (*models.DocumentChunk, error) {
	var results []models.DocumentChunk
	if err := s.db.Store().Find(&results, badgerhold.Where("VectorStoreID").Eq(vectorStoreID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find chunk: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("chunk not found for vector id: %s", vectorStoreID)
	}
	return &results[0], nil
}

func (s *DocumentStorage) GetChunkByPosition(ctx context.Context, documentID string, chunkIndex int) (*models.DocumentChunk, error) {
	var results []models.DocumentChunk
	query := badgerhold.Where("DocumentID").Eq(documentID).And("ChunkIndex").Eq(chunkIndex).Limit(1)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to find chunk: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("chunk not found: %s[%d]", documentID, chunkIndex)
	}
	return &results[0], nil
}

func (s *DocumentStorage) CountChunks(ctx context.Context, documentID string) (int, error) {
	count, err := s.db.Store().Count(&models.DocumentChunk{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(count), nil
}

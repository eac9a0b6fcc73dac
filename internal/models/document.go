package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScrapeStatus tracks document content acquisition
type ScrapeStatus string

const (
	ScrapeStatusPending    ScrapeStatus = "pending"
	ScrapeStatusInProgress ScrapeStatus = "in_progress"
	ScrapeStatusCompleted  ScrapeStatus = "completed"
	ScrapeStatusFailed     ScrapeStatus = "failed"
)

// Document is a unit of entity text. The body is markdown-first: HTML and PDF
// sources are converted during ingestion and chunked for the vector index.
type Document struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id" badgerhold:"index"`

	Title       string `json:"title"`
	SourceURL   string `json:"source_url,omitempty"` // Empty for directly uploaded bodies
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`

	ScrapeStatus ScrapeStatus `json:"scrape_status" badgerhold:"index"`
	ScrapeError  string       `json:"scrape_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument creates a document owned by an entity. Documents created with a
// body are completed immediately; documents created with a source URL start
// pending and are filled in by the ingest worker.
func NewDocument(entityID, title string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:           uuid.New().String(),
		EntityID:     entityID,
		Title:        title,
		ScrapeStatus: ScrapeStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks required document fields
func (d *Document) Validate() error {
	if d.EntityID == "" {
		return fmt.Errorf("document entity is required")
	}
	if d.Body == "" && d.SourceURL == "" {
		return fmt.Errorf("document requires a body or a source URL")
	}
	return nil
}

// MarkScrapeStarted transitions the document to in_progress
func (d *Document) MarkScrapeStarted() {
	d.ScrapeStatus = ScrapeStatusInProgress
	d.ScrapeError = ""
	d.UpdatedAt = time.Now().UTC()
}

// MarkScrapeCompleted transitions the document to completed with its body set
func (d *Document) MarkScrapeCompleted(body string) {
	d.Body = body
	d.ScrapeStatus = ScrapeStatusCompleted
	d.ScrapeError = ""
	d.UpdatedAt = time.Now().UTC()
}

// MarkScrapeFailed transitions the document to failed with the error captured
func (d *Document) MarkScrapeFailed(reason string) {
	d.ScrapeStatus = ScrapeStatusFailed
	d.ScrapeError = truncateMessage(reason, 1000)
	d.UpdatedAt = time.Now().UTC()
}

// DocumentChunk is a span of document text mirrored into the vector index.
// Unique on (document, chunk_index); stitching reads chunks ordered by index.
type DocumentChunk struct {
	ID            string                 `json:"id"`
	DocumentID    string                 `json:"document_id" badgerhold:"index"`
	ChunkIndex    int                    `json:"chunk_index"`
	Text          string                 `json:"text"`
	VectorStoreID string                 `json:"vector_store_id,omitempty" badgerhold:"index"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewDocumentChunk creates a chunk for a document position
func NewDocumentChunk(documentID string, index int, text string) *DocumentChunk {
	return &DocumentChunk{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		ChunkIndex: index,
		Text:       text,
		Metadata:   map[string]interface{}{},
	}
}

func truncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

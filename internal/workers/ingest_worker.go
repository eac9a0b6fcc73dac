package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/models"
)

// DocumentIngester runs the ingestion pipeline for one document
type DocumentIngester interface {
	IngestDocument(ctx context.Context, documentID string) error
}

// IngestWorker handles ingest_document tasks. Ingest failures are terminal at
// the task level: the document carries the failure and re-ingestion is an
// explicit user action.
type IngestWorker struct {
	ingester DocumentIngester
	logger   arbor.ILogger
}

// NewIngestWorker creates the ingest task worker
func NewIngestWorker(ingester DocumentIngester, logger arbor.ILogger) *IngestWorker {
	return &IngestWorker{
		ingester: ingester,
		logger:   logger,
	}
}

// Handle processes one ingest_document task
func (w *IngestWorker) Handle(ctx context.Context, msg *models.TaskMessage) error {
	var payload models.IngestDocumentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode ingest_document payload: %w", err)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("ingest_document payload has no document id")
	}

	if err := w.ingester.IngestDocument(ctx, payload.DocumentID); err != nil {
		// The document is already marked failed with the reason; ack the task
		w.logger.Warn().
			Err(err).
			Str("document_id", payload.DocumentID).
			Msg("Document ingest task failed")
	}
	return nil
}

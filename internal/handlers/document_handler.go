package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// DocumentHandler handles document API requests
type DocumentHandler struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		storage: storage,
		queue:   queue,
		logger:  logger,
	}
}

// ListDocumentsHandler lists documents filtered by scrape status
// GET /api/documents?status=failed&limit=50
func (h *DocumentHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.ScrapeStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.ScrapeStatusCompleted
	}
	limit := ClampLimit(QueryInt(r, "limit", 0), 50, 500)

	documents, err := h.storage.Documents().ListDocumentsByStatus(r.Context(), status, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("status", string(status)).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": documents,
		"count":     len(documents),
		"status":    status,
	})
}

// GetDocumentHandler returns a document; append /chunks for its chunk set
// GET /api/documents/{id}
// GET /api/documents/{id}/chunks
func (h *DocumentHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.storage.Documents().GetDocument(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	if strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/chunks") {
		chunks, err := h.storage.Documents().GetChunks(r.Context(), id)
		if err != nil {
			h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to list chunks")
			WriteError(w, http.StatusInternalServerError, "Failed to list chunks")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"document_id": id,
			"chunks":      chunks,
			"count":       len(chunks),
		})
		return
	}

	chunkCount, _ := h.storage.Documents().CountChunks(r.Context(), id)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document":    doc,
		"chunk_count": chunkCount,
	})
}

// ReingestDocumentHandler schedules a fresh ingest for a document. The
// previous chunk set stays live until the new run replaces it.
// POST /api/documents/{id}/reingest
func (h *DocumentHandler) ReingestDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.storage.Documents().GetDocument(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	task, err := models.NewIngestDocumentTask(doc.ID)
	if err == nil {
		err = h.queue.Enqueue(r.Context(), task)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to enqueue reingest")
		WriteError(w, http.StatusInternalServerError, "Failed to schedule reingest")
		return
	}

	h.logger.Info().Str("document_id", id).Msg("Document reingest queued")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"status":      "queued",
	})
}

// DeleteDocumentHandler removes a document and its chunks
// DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}
	if err := h.storage.Documents().DeleteDocument(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete document")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	WriteSuccess(w, "Document deleted")
}

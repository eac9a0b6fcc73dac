package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// EntitySyncer pulls external documents for one entity
type EntitySyncer interface {
	SyncEntity(ctx context.Context, entityID string) (int, error)
}

// EntityHandler handles entity API requests, including document intake
type EntityHandler struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	syncer  EntitySyncer
	logger  arbor.ILogger
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *EntityHandler {
	return &EntityHandler{
		storage: storage,
		queue:   queue,
		logger:  logger,
	}
}

// CreateEntityHandler creates an entity
// POST /api/entities
func (h *EntityHandler) CreateEntityHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID  string                 `json:"workspace_id"`
		EntityTypeID string                 `json:"entity_type_id"`
		Name         string                 `json:"name"`
		ExternalRef  string                 `json:"external_ref"`
		Metadata     map[string]interface{} `json:"metadata"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	entity := models.NewEntity(req.WorkspaceID, req.EntityTypeID, req.Name)
	entity.ExternalRef = req.ExternalRef
	if len(req.Metadata) > 0 {
		entity.Metadata = req.Metadata
	}
	if err := entity.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Entities().SaveEntity(r.Context(), entity); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create entity")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().Str("entity_id", entity.ID).Str("name", entity.Name).Msg("Entity created")
	WriteJSON(w, http.StatusCreated, entity)
}

// ListEntitiesHandler lists entities for a workspace
// GET /api/entities?workspace_id=...&limit=50&offset=0
func (h *EntityHandler) ListEntitiesHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		WriteError(w, http.StatusBadRequest, "workspace_id query parameter is required")
		return
	}

	opts := &interfaces.ListOptions{
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}
	entities, err := h.storage.Entities().ListEntities(r.Context(), workspaceID, opts)
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to list entities")
		WriteError(w, http.StatusInternalServerError, "Failed to list entities")
		return
	}
	total, _ := h.storage.Entities().CountEntities(r.Context(), workspaceID)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entities":    entities,
		"total_count": total,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// GetEntityHandler returns one entity with its documents
// GET /api/entities/{id}
func (h *EntityHandler) GetEntityHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Entity ID is required")
		return
	}

	entity, err := h.storage.Entities().GetEntity(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Entity not found")
		return
	}
	documents, err := h.storage.Documents().ListDocumentsByEntity(r.Context(), id)
	if err != nil {
		h.logger.Warn().Err(err).Str("entity_id", id).Msg("Failed to list entity documents")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity":    entity,
		"documents": documents,
	})
}

// DeleteEntityHandler removes an entity and its documents
// DELETE /api/entities/{id}
func (h *EntityHandler) DeleteEntityHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Entity ID is required")
		return
	}
	if err := h.storage.Entities().DeleteEntity(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("entity_id", id).Msg("Failed to delete entity")
		WriteError(w, http.StatusInternalServerError, "Failed to delete entity")
		return
	}
	WriteSuccess(w, "Entity deleted")
}

// UploadDocumentHandler attaches a document to an entity and enqueues its
// ingestion. Either an inline body or a source URL must be provided.
// POST /api/entities/{id}/documents
func (h *EntityHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	entityID := PathSegment(r, 2)
	if entityID == "" {
		WriteError(w, http.StatusBadRequest, "Entity ID is required")
		return
	}

	var req struct {
		Title       string `json:"title"`
		Body        string `json:"body"`
		SourceURL   string `json:"source_url"`
		ContentType string `json:"content_type"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.storage.Entities().GetEntity(r.Context(), entityID); err != nil {
		WriteError(w, http.StatusNotFound, "Entity not found")
		return
	}

	doc := models.NewDocument(entityID, req.Title)
	doc.Body = req.Body
	doc.SourceURL = req.SourceURL
	doc.ContentType = req.ContentType
	if err := doc.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Documents().SaveDocument(r.Context(), doc); err != nil {
		h.logger.Error().Err(err).Str("entity_id", entityID).Msg("Failed to save document")
		WriteError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}

	task, err := models.NewIngestDocumentTask(doc.ID)
	if err == nil {
		err = h.queue.Enqueue(r.Context(), task)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to enqueue document ingest")
		WriteError(w, http.StatusInternalServerError, "Document saved but ingest could not be scheduled")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("entity_id", entityID).
		Msg("Document uploaded and queued for ingest")
	WriteJSON(w, http.StatusCreated, doc)
}

// SetSyncer wires the external document connector used by SyncEntityHandler
func (h *EntityHandler) SetSyncer(syncer EntitySyncer) {
	h.syncer = syncer
}

// SyncEntityHandler pulls documents from the configured connector for one
// entity and queues them for ingest
// POST /api/entities/{id}/sync
func (h *EntityHandler) SyncEntityHandler(w http.ResponseWriter, r *http.Request) {
	entityID := PathSegment(r, 2)
	if entityID == "" {
		WriteError(w, http.StatusBadRequest, "Entity ID is required")
		return
	}
	if h.syncer == nil {
		WriteError(w, http.StatusServiceUnavailable, "No connector configured")
		return
	}

	if _, err := h.storage.Entities().GetEntity(r.Context(), entityID); err != nil {
		WriteError(w, http.StatusNotFound, "Entity not found")
		return
	}

	imported, err := h.syncer.SyncEntity(r.Context(), entityID)
	if err != nil {
		h.logger.Error().Err(err).Str("entity_id", entityID).Msg("Entity sync failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity_id": entityID,
		"imported":  imported,
	})
}

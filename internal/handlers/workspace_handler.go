package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// WorkspaceHandler handles workspace and entity type API requests
type WorkspaceHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(storage interfaces.StorageManager, logger arbor.ILogger) *WorkspaceHandler {
	return &WorkspaceHandler{
		storage: storage,
		logger:  logger,
	}
}

// CreateWorkspaceHandler creates a workspace
// POST /api/workspaces {"slug": "...", "name": "..."}
func (h *WorkspaceHandler) CreateWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	ws := models.NewWorkspace(req.Slug, req.Name)
	if err := ws.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Workspaces().SaveWorkspace(r.Context(), ws); err != nil {
		h.logger.Error().Err(err).Str("slug", req.Slug).Msg("Failed to create workspace")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info().Str("workspace_id", ws.ID).Str("slug", ws.Slug).Msg("Workspace created")
	WriteJSON(w, http.StatusCreated, ws)
}

// ListWorkspacesHandler lists all workspaces
// GET /api/workspaces
func (h *WorkspaceHandler) ListWorkspacesHandler(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.storage.Workspaces().ListWorkspaces(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list workspaces")
		WriteError(w, http.StatusInternalServerError, "Failed to list workspaces")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": workspaces,
		"count":      len(workspaces),
	})
}

// GetWorkspaceHandler returns one workspace with its entity types
// GET /api/workspaces/{id}
func (h *WorkspaceHandler) GetWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Workspace ID is required")
		return
	}

	ws, err := h.storage.Workspaces().GetWorkspace(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Workspace not found")
		return
	}
	types, err := h.storage.Entities().ListEntityTypes(r.Context(), ws.ID)
	if err != nil {
		h.logger.Warn().Err(err).Str("workspace_id", ws.ID).Msg("Failed to list entity types")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workspace":    ws,
		"entity_types": types,
	})
}

// DeleteWorkspaceHandler removes a workspace
// DELETE /api/workspaces/{id}
func (h *WorkspaceHandler) DeleteWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Workspace ID is required")
		return
	}
	if err := h.storage.Workspaces().DeleteWorkspace(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("workspace_id", id).Msg("Failed to delete workspace")
		WriteError(w, http.StatusInternalServerError, "Failed to delete workspace")
		return
	}
	WriteSuccess(w, "Workspace deleted")
}

// CreateEntityTypeHandler creates an entity type inside a workspace
// POST /api/entity-types {"workspace_id": "...", "slug": "...", "name": "..."}
func (h *WorkspaceHandler) CreateEntityTypeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Slug        string `json:"slug"`
		Name        string `json:"name"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.storage.Workspaces().GetWorkspace(r.Context(), req.WorkspaceID); err != nil {
		WriteError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	et := models.NewEntityType(req.WorkspaceID, req.Slug, req.Name)
	if err := et.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Entities().SaveEntityType(r.Context(), et); err != nil {
		h.logger.Error().Err(err).Str("slug", req.Slug).Msg("Failed to create entity type")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, et)
}

// ListEntityTypesHandler lists entity types for a workspace
// GET /api/entity-types?workspace_id=...
func (h *WorkspaceHandler) ListEntityTypesHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		WriteError(w, http.StatusBadRequest, "workspace_id query parameter is required")
		return
	}

	types, err := h.storage.Entities().ListEntityTypes(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to list entity types")
		WriteError(w, http.StatusInternalServerError, "Failed to list entity types")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity_types": types,
		"count":        len(types),
	})
}

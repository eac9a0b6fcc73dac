package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
)

// TemplateHandler handles matching template API requests. Configurations are
// normalized to their canonical shape before they are stored, so a broken
// template is rejected here rather than at run time.
type TemplateHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(storage interfaces.StorageManager, logger arbor.ILogger) *TemplateHandler {
	return &TemplateHandler{
		storage: storage,
		logger:  logger,
	}
}

// CreateTemplateHandler creates a matching template
// POST /api/templates
func (h *TemplateHandler) CreateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID        string                 `json:"workspace_id"`
		Name               string                 `json:"name"`
		SourceEntityTypeID string                 `json:"source_entity_type_id"`
		TargetEntityTypeID string                 `json:"target_entity_type_id"`
		Config             map[string]interface{} `json:"config"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	ctx := r.Context()

	if _, err := h.storage.Workspaces().GetWorkspace(ctx, req.WorkspaceID); err != nil {
		WriteError(w, http.StatusNotFound, "Workspace not found")
		return
	}
	for _, typeID := range []string{req.SourceEntityTypeID, req.TargetEntityTypeID} {
		et, err := h.storage.Entities().GetEntityType(ctx, typeID)
		if err != nil {
			WriteError(w, http.StatusNotFound, "Entity type not found: "+typeID)
			return
		}
		if et.WorkspaceID != req.WorkspaceID {
			WriteError(w, http.StatusBadRequest, "Entity type belongs to a different workspace")
			return
		}
	}

	normalized, err := matching.NormalizeMatchingConfig(req.Config, matching.ContextTemplate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	template := models.NewMatchingTemplate(req.WorkspaceID, req.Name, req.SourceEntityTypeID, req.TargetEntityTypeID, normalized.ToMap())
	if err := template.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Templates().SaveTemplate(ctx, template); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create template")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info().Str("template_id", template.ID).Str("name", template.Name).Msg("Template created")
	WriteJSON(w, http.StatusCreated, template)
}

// ListTemplatesHandler lists templates for a workspace
// GET /api/templates?workspace_id=...
func (h *TemplateHandler) ListTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		WriteError(w, http.StatusBadRequest, "workspace_id query parameter is required")
		return
	}

	templates, err := h.storage.Templates().ListTemplates(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to list templates")
		WriteError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// GetTemplateHandler returns one template
// GET /api/templates/{id}
func (h *TemplateHandler) GetTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	template, err := h.storage.Templates().GetTemplate(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Template not found")
		return
	}
	WriteJSON(w, http.StatusOK, template)
}

// UpdateTemplateConfigHandler replaces a template's configuration
// PUT /api/templates/{id}
func (h *TemplateHandler) UpdateTemplateConfigHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	var req struct {
		Config map[string]interface{} `json:"config"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.storage.Templates().GetTemplate(r.Context(), id); err != nil {
		WriteError(w, http.StatusNotFound, "Template not found")
		return
	}
	normalized, err := matching.NormalizeMatchingConfig(req.Config, matching.ContextTemplate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Templates().UpdateTemplateConfig(r.Context(), id, normalized.ToMap()); err != nil {
		h.logger.Error().Err(err).Str("template_id", id).Msg("Failed to update template config")
		WriteError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	h.logger.Info().Str("template_id", id).Msg("Template configuration updated")
	WriteSuccess(w, "Template updated")
}

// DeleteTemplateHandler removes a template
// DELETE /api/templates/{id}
func (h *TemplateHandler) DeleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}
	if err := h.storage.Templates().DeleteTemplate(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("template_id", id).Msg("Failed to delete template")
		WriteError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	WriteSuccess(w, "Template deleted")
}

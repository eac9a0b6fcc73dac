package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
)

// VectorCounter reports the size of the vector index
type VectorCounter interface {
	Count() int
}

type APIHandler struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	vectors VectorCounter
	logger  arbor.ILogger
}

func NewAPIHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, vectors VectorCounter) *APIHandler {
	return &APIHandler{
		storage: storage,
		queue:   queue,
		vectors: vectors,
		logger:  common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusHandler returns document, queue and vector counts
// GET /api/status
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	status := map[string]interface{}{
		"status": "ok",
	}
	if count, err := h.storage.Documents().CountDocuments(ctx); err == nil {
		status["documents"] = count
	}
	if workspaces, err := h.storage.Workspaces().ListWorkspaces(ctx); err == nil {
		status["workspaces"] = len(workspaces)
	}
	status["queue_depth"] = h.queueDepth(ctx)
	if h.vectors != nil {
		status["vectors"] = h.vectors.Count()
	}

	WriteJSON(w, http.StatusOK, status)
}

func (h *APIHandler) queueDepth(ctx context.Context) int {
	if h.queue == nil {
		return 0
	}
	depth, err := h.queue.Length(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read queue length")
		return 0
	}
	return depth
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}

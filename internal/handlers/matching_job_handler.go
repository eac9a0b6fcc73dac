package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/services/matchingjobs"
	"github.com/ternarybob/comparo/internal/services/reports"
)

const (
	defaultUpdateLimit = 50
	maxUpdateLimit     = 200
)

// MatchingJobHandler handles matching job API requests
type MatchingJobHandler struct {
	jobs    *matchingjobs.Service
	reports *reports.Service
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewMatchingJobHandler creates a new matching job handler
func NewMatchingJobHandler(jobs *matchingjobs.Service, reportSvc *reports.Service, storage interfaces.StorageManager, logger arbor.ILogger) *MatchingJobHandler {
	return &MatchingJobHandler{
		jobs:    jobs,
		reports: reportSvc,
		storage: storage,
		logger:  logger,
	}
}

// CreateJobHandler creates a matching job and, unless enqueue is false,
// schedules its first run
// POST /api/matching-jobs
func (h *MatchingJobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req matchingjobs.CreateJobRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), &req)
	if err != nil {
		WriteError(w, statusForError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler lists jobs for a workspace
// GET /api/matching-jobs?workspace_id=...&status=running&limit=50&offset=0
func (h *MatchingJobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		WriteError(w, http.StatusBadRequest, "workspace_id query parameter is required")
		return
	}
	status := models.JobStatus(r.URL.Query().Get("status"))
	opts := &interfaces.ListOptions{
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}

	jobs, err := h.storage.MatchingJobs().ListJobs(r.Context(), workspaceID, status, opts)
	if err != nil {
		h.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetJobHandler returns one job with its target count and latest run
// GET /api/matching-jobs/{id}
func (h *MatchingJobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	ctx := r.Context()

	job, err := h.storage.MatchingJobs().GetJob(ctx, id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	targetCount, _ := h.storage.MatchingJobs().CountTargets(ctx, id)
	response := map[string]interface{}{
		"job":          job,
		"target_count": targetCount,
	}
	if run, err := h.storage.MatchingRuns().GetLatestRun(ctx, id); err == nil {
		response["latest_run"] = run
	}

	WriteJSON(w, http.StatusOK, response)
}

// RunJobHandler enqueues a run for an existing job
// POST /api/matching-jobs/{id}/run
func (h *MatchingJobHandler) RunJobHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.jobs.EnqueueRun(r.Context(), id); err != nil {
		WriteError(w, statusForError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": "queued",
	})
}

// PopulateTargetsHandler pins candidate entities of the template target type
// POST /api/matching-jobs/{id}/targets/populate {"limit": 0}
func (h *MatchingJobHandler) PopulateTargetsHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	var req struct {
		Limit int `json:"limit"`
	}
	// An empty body means no limit
	if r.Body != nil && r.ContentLength > 0 {
		if !DecodeJSONBody(w, r, &req) {
			return
		}
	}

	added, err := h.jobs.PopulateTargets(r.Context(), id, req.Limit)
	if err != nil {
		WriteError(w, statusForError(err), err.Error())
		return
	}

	total, _ := h.storage.MatchingJobs().CountTargets(r.Context(), id)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       id,
		"added":        added,
		"target_count": total,
	})
}

// ListMatchesHandler returns ranked matches with their feature rows
// GET /api/matching-jobs/{id}/matches
func (h *MatchingJobHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	ctx := r.Context()

	if _, err := h.storage.MatchingJobs().GetJob(ctx, id); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	matches, err := h.storage.Matches().ListMatches(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to list matches")
		WriteError(w, http.StatusInternalServerError, "Failed to list matches")
		return
	}

	results := make([]map[string]interface{}, 0, len(matches))
	for _, match := range matches {
		features, err := h.storage.Matches().ListFeatures(ctx, match.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("match_id", match.ID).Msg("Failed to list match features")
		}
		results = append(results, map[string]interface{}{
			"match":    match,
			"features": features,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  id,
		"matches": results,
		"count":   len(results),
	})
}

// ListUpdatesHandler replays persisted job events, newest first
// GET /api/matching-jobs/{id}/updates?limit=50
func (h *MatchingJobHandler) ListUpdatesHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	ctx := r.Context()

	if _, err := h.storage.MatchingJobs().GetJob(ctx, id); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	limit := ClampLimit(QueryInt(r, "limit", 0), defaultUpdateLimit, maxUpdateLimit)
	updates, err := h.storage.Updates().ListUpdates(ctx, id, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to list updates")
		WriteError(w, http.StatusInternalServerError, "Failed to list updates")
		return
	}
	total, _ := h.storage.Updates().CountUpdates(ctx, id)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      id,
		"updates":     updates,
		"count":       len(updates),
		"total_count": total,
		"limit":       limit,
	})
}

// ReportHandler exports the match report for a finished job
// GET /api/matching-jobs/{id}/report?format=markdown|html|pdf
func (h *MatchingJobHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, 2)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.GenerateJobReport(r.Context(), id, format)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", report.Format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=\""+report.Filename+"\"")
	w.WriteHeader(http.StatusOK)
	w.Write(report.Data)
}

// statusForError maps service and domain errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case matching.IsConfigurationError(err):
		return http.StatusBadRequest
	case strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	case strings.Contains(err.Error(), "already running"):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

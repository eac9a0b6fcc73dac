package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket routes: global log/status stream and per-job event groups
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)
	mux.HandleFunc("/ws/matching-jobs/", s.app.WSHandler.HandleJobSocket)

	// API routes - Workspaces and entity types
	mux.HandleFunc("/api/workspaces", s.handleWorkspacesRoute)
	mux.HandleFunc("/api/workspaces/", s.handleWorkspaceRoutes)
	mux.HandleFunc("/api/entity-types", s.handleEntityTypesRoute)

	// API routes - Entities and their documents
	mux.HandleFunc("/api/entities", s.handleEntitiesRoute)
	mux.HandleFunc("/api/entities/", s.handleEntityRoutes)

	// API routes - Documents
	mux.HandleFunc("/api/documents", s.app.DocumentHandler.ListDocumentsHandler)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes)

	// API routes - Matching templates
	mux.HandleFunc("/api/templates", s.handleTemplatesRoute)
	mux.HandleFunc("/api/templates/", s.handleTemplateRoutes)

	// API routes - Matching jobs
	mux.HandleFunc("/api/matching-jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/matching-jobs/", s.handleJobRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleWorkspacesRoute routes /api/workspaces (list and create)
func (s *Server) handleWorkspacesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.WorkspaceHandler.ListWorkspacesHandler,
		s.app.WorkspaceHandler.CreateWorkspaceHandler)
}

// handleWorkspaceRoutes routes /api/workspaces/{id}
func (s *Server) handleWorkspaceRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.WorkspaceHandler.GetWorkspaceHandler,
		nil,
		s.app.WorkspaceHandler.DeleteWorkspaceHandler)
}

// handleEntityTypesRoute routes /api/entity-types (list and create)
func (s *Server) handleEntityTypesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.WorkspaceHandler.ListEntityTypesHandler,
		s.app.WorkspaceHandler.CreateEntityTypeHandler)
}

// handleEntitiesRoute routes /api/entities (list and create)
func (s *Server) handleEntitiesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.EntityHandler.ListEntitiesHandler,
		s.app.EntityHandler.CreateEntityHandler)
}

// handleEntityRoutes routes /api/entities/{id} and its subresources
func (s *Server) handleEntityRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimRight(r.URL.Path, "/")
	if strings.HasSuffix(path, "/documents") {
		RouteResourceCollection(w, r,
			s.app.EntityHandler.GetEntityHandler,
			s.app.EntityHandler.UploadDocumentHandler)
		return
	}
	if r.Method == "POST" && strings.HasSuffix(path, "/sync") {
		s.app.EntityHandler.SyncEntityHandler(w, r)
		return
	}
	RouteResourceItem(w, r,
		s.app.EntityHandler.GetEntityHandler,
		nil,
		s.app.EntityHandler.DeleteEntityHandler)
}

// handleDocumentRoutes routes /api/documents/{id} and subpaths
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/reingest") {
		s.app.DocumentHandler.ReingestDocumentHandler(w, r)
		return
	}
	RouteResourceItem(w, r,
		s.app.DocumentHandler.GetDocumentHandler,
		nil,
		s.app.DocumentHandler.DeleteDocumentHandler)
}

// handleTemplatesRoute routes /api/templates (list and create)
func (s *Server) handleTemplatesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.TemplateHandler.ListTemplatesHandler,
		s.app.TemplateHandler.CreateTemplateHandler)
}

// handleTemplateRoutes routes /api/templates/{id}
func (s *Server) handleTemplateRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.TemplateHandler.GetTemplateHandler,
		s.app.TemplateHandler.UpdateTemplateConfigHandler,
		s.app.TemplateHandler.DeleteTemplateHandler)
}

// handleJobsRoute routes /api/matching-jobs (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.MatchingJobHandler.ListJobsHandler,
		s.app.MatchingJobHandler.CreateJobHandler)
}

// handleJobRoutes routes /api/matching-jobs/{id} and its subresources
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimRight(r.URL.Path, "/")

	if r.Method == "POST" {
		switch {
		case strings.HasSuffix(path, "/run"):
			s.app.MatchingJobHandler.RunJobHandler(w, r)
		case strings.HasSuffix(path, "/targets/populate"):
			s.app.MatchingJobHandler.PopulateTargetsHandler(w, r)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
		return
	}

	if r.Method == "GET" {
		switch {
		case strings.HasSuffix(path, "/matches"):
			s.app.MatchingJobHandler.ListMatchesHandler(w, r)
		case strings.HasSuffix(path, "/updates"):
			s.app.MatchingJobHandler.ListUpdatesHandler(w, r)
		case strings.HasSuffix(path, "/report"):
			s.app.MatchingJobHandler.ReportHandler(w, r)
		default:
			s.app.MatchingJobHandler.GetJobHandler(w, r)
		}
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

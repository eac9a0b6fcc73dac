package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/comparo/internal/models"
)

// ListOptions provides pagination for list operations
type ListOptions struct {
	Limit  int
	Offset int
}

// WorkspaceStorage - tenant boundary persistence
type WorkspaceStorage interface {
	SaveWorkspace(ctx context.Context, ws *models.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	GetWorkspaceBySlug(ctx context.Context, slug string) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*models.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error
}

// EntityStorage - entity types and entities. Workspace consistency between an
// entity and its type is enforced here, not left to callers.
type EntityStorage interface {
	SaveEntityType(ctx context.Context, et *models.EntityType) error
	GetEntityType(ctx context.Context, id string) (*models.EntityType, error)
	GetEntityTypeBySlug(ctx context.Context, workspaceID, slug string) (*models.EntityType, error)
	ListEntityTypes(ctx context.Context, workspaceID string) ([]*models.EntityType, error)
	DeleteEntityType(ctx context.Context, id string) error

	SaveEntity(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	GetEntityByExternalRef(ctx context.Context, workspaceID, externalRef string) (*models.Entity, error)
	ListEntities(ctx context.Context, workspaceID string, opts *ListOptions) ([]*models.Entity, error)
	ListEntitiesByType(ctx context.Context, entityTypeID string, limit int) ([]*models.Entity, error)
	DeleteEntity(ctx context.Context, id string) error
	CountEntities(ctx context.Context, workspaceID string) (int, error)
}

// DocumentStorage - documents and their chunks
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByEntity(ctx context.Context, entityID string) ([]*models.Document, error)
	ListDocumentsByStatus(ctx context.Context, status models.ScrapeStatus, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int, error)

	// Chunk operations. ReplaceChunks rewrites the chunk set for a document
	// in one transaction and returns the chunks that were removed so callers
	// can de-index their vectors.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*models.DocumentChunk) ([]*models.DocumentChunk, error)
	GetChunks(ctx context.Context, documentID string) ([]*models.DocumentChunk, error)
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunkByVectorStoreID(ctx context.Context, vectorStoreID string) (*models.DocumentChunk, error)
	GetChunkByPosition(ctx context.Context, documentID string, chunkIndex int) (*models.DocumentChunk, error)
	CountChunks(ctx context.Context, documentID string) (int, error)
}

// TemplateStorage - matching template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, t *models.MatchingTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.MatchingTemplate, error)
	ListTemplates(ctx context.Context, workspaceID string) ([]*models.MatchingTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error

	// UpdateTemplateConfig writes the canonical configuration back after
	// normalization so readers always see the canonical shape
	UpdateTemplateConfig(ctx context.Context, id string, config map[string]interface{}) error
}

// MatchingJobStorage - jobs and their pinned targets
type MatchingJobStorage interface {
	SaveJob(ctx context.Context, job *models.MatchingJob) error
	GetJob(ctx context.Context, id string) (*models.MatchingJob, error)
	ListJobs(ctx context.Context, workspaceID string, status models.JobStatus, opts *ListOptions) ([]*models.MatchingJob, error)
	DeleteJob(ctx context.Context, id string) error
	UpdateJobConfigOverride(ctx context.Context, id string, override map[string]interface{}) error

	// AddTarget enforces (job, entity) uniqueness; adding an existing pair is
	// a no-op returning false
	AddTarget(ctx context.Context, target *models.MatchingJobTarget) (bool, error)
	ListTargets(ctx context.Context, jobID string) ([]*models.MatchingJobTarget, error)
	CountTargets(ctx context.Context, jobID string) (int, error)
}

// MatchingRunStorage - execution attempt persistence
type MatchingRunStorage interface {
	SaveRun(ctx context.Context, run *models.MatchingJobRun) error
	GetRun(ctx context.Context, id string) (*models.MatchingJobRun, error)
	GetLatestRun(ctx context.Context, jobID string) (*models.MatchingJobRun, error)
	ListRuns(ctx context.Context, jobID string) ([]*models.MatchingJobRun, error)
	ListStaleRuns(ctx context.Context, olderThan time.Time) ([]*models.MatchingJobRun, error)
}

// MatchingAuditStorage - immutable per-run trace rows
type MatchingAuditStorage interface {
	SaveSearchLog(ctx context.Context, log *models.MatchingSearchLog, hits []*models.MatchingSearchHitLog) error
	ListSearchLogs(ctx context.Context, runID string) ([]*models.MatchingSearchLog, error)
	ListSearchHits(ctx context.Context, searchLogID string) ([]*models.MatchingSearchHitLog, error)
	CountSearchLogs(ctx context.Context, runID string, queryType models.SearchQueryType) (int, error)

	// SaveEvaluationLog upserts on (run, target)
	SaveEvaluationLog(ctx context.Context, log *models.MatchingEvaluationLog, details []*models.MatchingEvaluationDetailLog) error
	ListEvaluationLogs(ctx context.Context, runID string) ([]*models.MatchingEvaluationLog, error)
	ListEvaluationDetails(ctx context.Context, evaluationLogID string) ([]*models.MatchingEvaluationDetailLog, error)
}

// MatchEntry pairs a match with its feature rows for atomic persistence
type MatchEntry struct {
	Match    *models.Match
	Features []*models.MatchFeature
}

// MatchStorage - final ranked results. ReplaceMatches deletes all prior
// matches (and features) for the job and inserts the new set in a single
// transaction; readers see either the old or the new complete set.
type MatchStorage interface {
	ReplaceMatches(ctx context.Context, jobID string, entries []MatchEntry) error
	ListMatches(ctx context.Context, jobID string) ([]*models.Match, error)
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ListFeatures(ctx context.Context, matchID string) ([]*models.MatchFeature, error)
	DeleteMatches(ctx context.Context, jobID string) error
}

// UpdateStorage - append-only job event log used for client replay
type UpdateStorage interface {
	AppendUpdate(ctx context.Context, update *models.MatchingJobUpdate) error
	ListUpdates(ctx context.Context, jobID string, limit int) ([]*models.MatchingJobUpdate, error)
	CountUpdates(ctx context.Context, jobID string) (int, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	Workspaces() WorkspaceStorage
	Entities() EntityStorage
	Documents() DocumentStorage
	Templates() TemplateStorage
	MatchingJobs() MatchingJobStorage
	MatchingRuns() MatchingRunStorage
	MatchingAudits() MatchingAuditStorage
	Matches() MatchStorage
	Updates() UpdateStorage
	Close() error
}

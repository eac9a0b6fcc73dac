package matching

import (
	"context"
	"fmt"

	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// EntityBundle is a fully hydrated entity: its documents and their chunks in
// chunk-index order. Bundles are read-only; downstream stages never touch
// persistence for these objects.
type EntityBundle struct {
	Entity    *models.Entity
	Documents []*models.Document
	Chunks    []*models.DocumentChunk
}

// JobContext carries everything a run needs in one load: the job, its
// template, the source bundle, the target bundles and the effective
// configuration. Chunk lookup maps support hit resolution without further
// storage reads.
type JobContext struct {
	Job      *models.MatchingJob
	Template *models.MatchingTemplate
	Source   *EntityBundle
	Targets  []*EntityBundle
	Config   *MatchingConfiguration

	chunksByID       map[string]*models.DocumentChunk
	chunksByVectorID map[string]*models.DocumentChunk
	chunksByPosition map[string]*models.DocumentChunk
}

// WorkspaceID exposes the job's workspace as a string for provider contracts
func (c *JobContext) WorkspaceID() string {
	return c.Job.WorkspaceID
}

// ResolveChunk maps a vector hit onto a local chunk: vector-store id first,
// then primary key, then the (document_id, chunk_index) pair from the hit
// metadata. Returns nil when nothing matches.
func (c *JobContext) ResolveChunk(hit interfaces.VectorHit) *models.DocumentChunk {
	if hit.ID != "" {
		if chunk, ok := c.chunksByVectorID[hit.ID]; ok {
			return chunk
		}
		if chunk, ok := c.chunksByID[hit.ID]; ok {
			return chunk
		}
	}
	if chunkID, ok := hit.Metadata["chunk_id"].(string); ok && chunkID != "" {
		if chunk, found := c.chunksByID[chunkID]; found {
			return chunk
		}
	}
	if documentID, ok := hit.Metadata["document_id"].(string); ok && documentID != "" {
		if index, found := asInt(hit.Metadata["chunk_index"]); found {
			if chunk, present := c.chunksByPosition[positionKey(documentID, index)]; present {
				return chunk
			}
		}
	}
	return nil
}

func (c *JobContext) indexBundle(bundle *EntityBundle) {
	for _, chunk := range bundle.Chunks {
		c.chunksByID[chunk.ID] = chunk
		if chunk.VectorStoreID != "" {
			c.chunksByVectorID[chunk.VectorStoreID] = chunk
		}
		c.chunksByPosition[positionKey(chunk.DocumentID, chunk.ChunkIndex)] = chunk
	}
}

func positionKey(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

// Loader hydrates job contexts from storage in a single dependency pass
type Loader struct {
	storage interfaces.StorageManager
}

// NewLoader creates a context loader
func NewLoader(storage interfaces.StorageManager) *Loader {
	return &Loader{storage: storage}
}

// LoadJobContext loads the job with its template, source bundle, target
// bundles and effective configuration
func (l *Loader) LoadJobContext(ctx context.Context, jobID string) (*JobContext, error) {
	job, err := l.storage.MatchingJobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	template, err := l.storage.Templates().GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	config, err := EffectiveConfiguration(template.Config, job.ConfigOverride)
	if err != nil {
		return nil, err
	}

	source, err := l.loadBundle(ctx, job.SourceEntityID)
	if err != nil {
		return nil, fmt.Errorf("load source entity: %w", err)
	}

	targetRefs, err := l.storage.MatchingJobs().ListTargets(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job targets: %w", err)
	}

	targets := make([]*EntityBundle, 0, len(targetRefs))
	for _, ref := range targetRefs {
		bundle, err := l.loadBundle(ctx, ref.EntityID)
		if err != nil {
			return nil, fmt.Errorf("load target entity %s: %w", ref.EntityID, err)
		}
		targets = append(targets, bundle)
	}

	jobCtx := &JobContext{
		Job:      job,
		Template: template,
		Source:   source,
		Targets:  targets,
		Config:   config,

		chunksByID:       make(map[string]*models.DocumentChunk),
		chunksByVectorID: make(map[string]*models.DocumentChunk),
		chunksByPosition: make(map[string]*models.DocumentChunk),
	}
	jobCtx.indexBundle(source)
	for _, bundle := range targets {
		jobCtx.indexBundle(bundle)
	}

	return jobCtx, nil
}

func (l *Loader) loadBundle(ctx context.Context, entityID string) (*EntityBundle, error) {
	entity, err := l.storage.Entities().GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	documents, err := l.storage.Documents().ListDocumentsByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	bundle := &EntityBundle{Entity: entity, Documents: documents}
	for _, doc := range documents {
		chunks, err := l.storage.Documents().GetChunks(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		bundle.Chunks = append(bundle.Chunks, chunks...)
	}

	return bundle, nil
}

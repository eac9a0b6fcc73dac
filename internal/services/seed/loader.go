package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the YAML seed document shape
type File struct {
	Workspaces []WorkspaceSeed `yaml:"workspaces"`
}

// WorkspaceSeed declares one workspace with its types, entities and templates
type WorkspaceSeed struct {
	Slug        string         `yaml:"slug"`
	Name        string         `yaml:"name"`
	EntityTypes []TypeSeed     `yaml:"entity_types"`
	Entities    []EntitySeed   `yaml:"entities"`
	Templates   []TemplateSeed `yaml:"templates"`
}

// TypeSeed declares an entity type by slug
type TypeSeed struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// EntitySeed declares an entity; Type references an entity type slug
type EntitySeed struct {
	Type        string                 `yaml:"type"`
	Name        string                 `yaml:"name"`
	ExternalRef string                 `yaml:"external_ref"`
	Metadata    map[string]interface{} `yaml:"metadata"`
	Documents   []DocumentSeed         `yaml:"documents"`
}

// DocumentSeed declares a document, either with an inline body or a URL
type DocumentSeed struct {
	Title     string `yaml:"title"`
	Body      string `yaml:"body"`
	SourceURL string `yaml:"source_url"`
}

// TemplateSeed declares a matching template; Source and Target reference
// entity type slugs
type TemplateSeed struct {
	Name   string                 `yaml:"name"`
	Source string                 `yaml:"source"`
	Target string                 `yaml:"target"`
	Config map[string]interface{} `yaml:"config"`
}

// Loader applies a YAML seed file at startup. Seeding is idempotent:
// workspaces and entity types are matched by slug, entities by external ref
// (or name when absent), documents by title and templates by name. Existing
// records are left alone.
type Loader struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

// NewLoader creates the seed loader. A nil queue skips ingest scheduling.
func NewLoader(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *Loader {
	return &Loader{
		storage: storage,
		queue:   queue,
		logger:  logger,
	}
}

// LoadFile reads the seed file at path and applies it. A missing file is not
// an error so deployments can share a config that names an optional seed.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug().Str("path", path).Msg("Seed file does not exist, skipping")
			return nil
		}
		return fmt.Errorf("read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return l.Apply(ctx, &file)
}

// Apply applies a parsed seed document
func (l *Loader) Apply(ctx context.Context, file *File) error {
	for i := range file.Workspaces {
		if err := l.applyWorkspace(ctx, &file.Workspaces[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyWorkspace(ctx context.Context, seed *WorkspaceSeed) error {
	if seed.Slug == "" {
		return fmt.Errorf("seed workspace has no slug")
	}

	ws, err := l.storage.Workspaces().GetWorkspaceBySlug(ctx, seed.Slug)
	if err != nil {
		name := seed.Name
		if name == "" {
			name = seed.Slug
		}
		ws = models.NewWorkspace(seed.Slug, name)
		if err := l.storage.Workspaces().SaveWorkspace(ctx, ws); err != nil {
			return fmt.Errorf("seed workspace %s: %w", seed.Slug, err)
		}
		l.logger.Info().Str("slug", seed.Slug).Msg("Workspace seeded")
	}

	types := make(map[string]string, len(seed.EntityTypes))
	for _, ts := range seed.EntityTypes {
		id, err := l.applyEntityType(ctx, ws.ID, &ts)
		if err != nil {
			return err
		}
		types[ts.Slug] = id
	}

	for i := range seed.Entities {
		if err := l.applyEntity(ctx, ws.ID, types, &seed.Entities[i]); err != nil {
			return err
		}
	}

	for i := range seed.Templates {
		if err := l.applyTemplate(ctx, ws.ID, types, &seed.Templates[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyEntityType(ctx context.Context, workspaceID string, seed *TypeSeed) (string, error) {
	if seed.Slug == "" {
		return "", fmt.Errorf("seed entity type has no slug")
	}
	if et, err := l.storage.Entities().GetEntityTypeBySlug(ctx, workspaceID, seed.Slug); err == nil {
		return et.ID, nil
	}

	name := seed.Name
	if name == "" {
		name = seed.Slug
	}
	et := models.NewEntityType(workspaceID, seed.Slug, name)
	if err := l.storage.Entities().SaveEntityType(ctx, et); err != nil {
		return "", fmt.Errorf("seed entity type %s: %w", seed.Slug, err)
	}
	return et.ID, nil
}

func (l *Loader) applyEntity(ctx context.Context, workspaceID string, types map[string]string, seed *EntitySeed) error {
	typeID, ok := types[seed.Type]
	if !ok {
		return fmt.Errorf("seed entity %q references unknown type %q", seed.Name, seed.Type)
	}

	entity, err := l.findEntity(ctx, workspaceID, typeID, seed)
	if err != nil {
		return err
	}
	if entity == nil {
		entity = models.NewEntity(workspaceID, typeID, seed.Name)
		entity.ExternalRef = seed.ExternalRef
		if len(seed.Metadata) > 0 {
			entity.Metadata = seed.Metadata
		}
		if err := l.storage.Entities().SaveEntity(ctx, entity); err != nil {
			return fmt.Errorf("seed entity %s: %w", seed.Name, err)
		}
		l.logger.Info().Str("name", seed.Name).Msg("Entity seeded")
	}

	existing, err := l.storage.Documents().ListDocumentsByEntity(ctx, entity.ID)
	if err != nil {
		return fmt.Errorf("list entity documents: %w", err)
	}
	titles := make(map[string]bool, len(existing))
	for _, doc := range existing {
		titles[doc.Title] = true
	}

	for _, ds := range seed.Documents {
		if titles[ds.Title] {
			continue
		}
		doc := models.NewDocument(entity.ID, ds.Title)
		doc.Body = ds.Body
		doc.SourceURL = ds.SourceURL
		if err := l.storage.Documents().SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("seed document %s: %w", ds.Title, err)
		}
		if l.queue != nil {
			task, err := models.NewIngestDocumentTask(doc.ID)
			if err != nil {
				return fmt.Errorf("build ingest task: %w", err)
			}
			if err := l.queue.Enqueue(ctx, task); err != nil {
				return fmt.Errorf("enqueue seed ingest: %w", err)
			}
		}
	}
	return nil
}

func (l *Loader) findEntity(ctx context.Context, workspaceID, typeID string, seed *EntitySeed) (*models.Entity, error) {
	if seed.ExternalRef != "" {
		if e, err := l.storage.Entities().GetEntityByExternalRef(ctx, workspaceID, seed.ExternalRef); err == nil && e != nil {
			return e, nil
		}
		return nil, nil
	}
	entities, err := l.storage.Entities().ListEntitiesByType(ctx, typeID, 0)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	for _, e := range entities {
		if e.Name == seed.Name {
			return e, nil
		}
	}
	return nil, nil
}

func (l *Loader) applyTemplate(ctx context.Context, workspaceID string, types map[string]string, seed *TemplateSeed) error {
	existing, err := l.storage.Templates().ListTemplates(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	for _, t := range existing {
		if t.Name == seed.Name {
			return nil
		}
	}

	sourceID, ok := types[seed.Source]
	if !ok {
		return fmt.Errorf("seed template %q references unknown source type %q", seed.Name, seed.Source)
	}
	targetID, ok := types[seed.Target]
	if !ok {
		return fmt.Errorf("seed template %q references unknown target type %q", seed.Name, seed.Target)
	}

	// Store the canonical form so runs skip the write-back
	normalized, err := matching.NormalizeMatchingConfig(seed.Config, matching.ContextTemplate)
	if err != nil {
		return fmt.Errorf("seed template %q: %w", seed.Name, err)
	}

	template := models.NewMatchingTemplate(workspaceID, seed.Name, sourceID, targetID, normalized.ToMap())
	if err := l.storage.Templates().SaveTemplate(ctx, template); err != nil {
		return fmt.Errorf("seed template %s: %w", seed.Name, err)
	}
	l.logger.Info().Str("name", seed.Name).Msg("Template seeded")
	return nil
}

package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	workspace interfaces.WorkspaceStorage
	entity    interfaces.EntityStorage
	document  interfaces.DocumentStorage
	template  interfaces.TemplateStorage
	job       interfaces.MatchingJobStorage
	run       interfaces.MatchingRunStorage
	audit     interfaces.MatchingAuditStorage
	match     interfaces.MatchStorage
	update    interfaces.UpdateStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		workspace: NewWorkspaceStorage(db, logger),
		entity:    NewEntityStorage(db, logger),
		document:  NewDocumentStorage(db, logger),
		template:  NewTemplateStorage(db, logger),
		job:       NewMatchingJobStorage(db, logger),
		run:       NewMatchingRunStorage(db, logger),
		audit:     NewMatchingAuditStorage(db, logger),
		match:     NewMatchStorage(db, logger),
		update:    NewUpdateStorage(db, logger),
		logger:    logger,
	}, nil
}

// DB returns the underlying Badger connection for services that need
// direct access (maintenance tasks, tests).
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Workspaces returns the workspace storage
func (m *Manager) Workspaces() interfaces.WorkspaceStorage {
	return m.workspace
}

// Entities returns the entity storage
func (m *Manager) Entities() interfaces.EntityStorage {
	return m.entity
}

// Documents returns the document storage
func (m *Manager) Documents() interfaces.DocumentStorage {
	return m.document
}

// Templates returns the matching template storage
func (m *Manager) Templates() interfaces.TemplateStorage {
	return m.template
}

// MatchingJobs returns the matching job storage
func (m *Manager) MatchingJobs() interfaces.MatchingJobStorage {
	return m.job
}

// MatchingRuns returns the matching run storage
func (m *Manager) MatchingRuns() interfaces.MatchingRunStorage {
	return m.run
}

// MatchingAudits returns the matching audit storage
func (m *Manager) MatchingAudits() interfaces.MatchingAuditStorage {
	return m.audit
}

// Matches returns the match storage
func (m *Manager) Matches() interfaces.MatchStorage {
	return m.match
}

// Updates returns the job update storage
func (m *Manager) Updates() interfaces.UpdateStorage {
	return m.update
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}

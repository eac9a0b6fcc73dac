package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// MatchingAuditStorage implements the MatchingAuditStorage interface for
// Badger. Rows are written once per run and never updated, except the
// evaluation log which upserts on (run, target).
type MatchingAuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchingAuditStorage creates a new MatchingAuditStorage instance
func NewMatchingAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchingAuditStorage {
	return &MatchingAuditStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchingAuditStorage) SaveSearchLog(ctx context.Context, log *models.MatchingSearchLog, hits []*models.MatchingSearchHitLog) error {
	if log.ID == "" || log.RunID == "" {
		return fmt.Errorf("search log ID and run ID are required")
	}

	store := s.db.Store()
	err := store.Badger().Update(func(txn *badgerdb.Txn) error {
		if err := store.TxInsert(txn, log.ID, log); err != nil {
			return fmt.Errorf("failed to insert search log: %w", err)
		}
		for _, hit := range hits {
			hit.SearchLogID = log.ID
			if err := store.TxInsert(txn, hit.ID, hit); err != nil {
				return fmt.Errorf("failed to insert search hit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *MatchingAuditStorage) ListSearchLogs(ctx context.Context, runID string) ([]*models.MatchingSearchLog, error) {
	var logs []models.MatchingSearchLog
	if err := s.db.Store().Find(&logs, badgerhold.Where("RunID").Eq(runID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list search logs: %w", err)
	}

	result := make([]*models.MatchingSearchLog, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (s *MatchingAuditStorage) ListSearchHits(ctx context.Context, searchLogID string) ([]*models.MatchingSearchHitLog, error) {
	var hits []models.MatchingSearchHitLog
	if err := s.db.Store().Find(&hits, badgerhold.Where("SearchLogID").Eq(searchLogID).SortBy("Rank")); err != nil {
		return nil, fmt.Errorf("failed to list search hits: %w", err)
	}

	result := make([]*models.MatchingSearchHitLog, len(hits))
	for i := range hits {
		result[i] = &hits[i]
	}
	return result, nil
}

func (s *MatchingAuditStorage) CountSearchLogs(ctx context.Context, runID string, queryType models.SearchQueryType) (int, error) {
	query := badgerhold.Where("RunID").Eq(runID)
	if queryType != "" {
		query = query.And("QueryType").Eq(queryType)
	}

	count, err := s.db.Store().Count(&models.MatchingSearchLog{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count search logs: %w", err)
	}
	return int(count), nil
}

// SaveEvaluationLog upserts the evaluation for (run, target): a re-evaluation
// inside the same run replaces the earlier row and its details in one
// transaction.
func (s *MatchingAuditStorage) SaveEvaluationLog(ctx context.Context, log *models.MatchingEvaluationLog, details []*models.MatchingEvaluationDetailLog) error {
	if log.ID == "" || log.RunID == "" || log.TargetEntityID == "" {
		return fmt.Errorf("evaluation log ID, run ID and target entity ID are required")
	}

	store := s.db.Store()
	err := store.Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.MatchingEvaluationLog
		query := badgerhold.Where("RunID").Eq(log.RunID).And("TargetEntityID").Eq(log.TargetEntityID)
		if err := store.TxFind(txn, &existing, query); err != nil {
			return fmt.Errorf("failed to find existing evaluation: %w", err)
		}
		for i := range existing {
			if err := store.TxDeleteMatching(txn, &models.MatchingEvaluationDetailLog{}, badgerhold.Where("EvaluationLogID").Eq(existing[i].ID)); err != nil {
				return fmt.Errorf("failed to delete old evaluation details: %w", err)
			}
			if err := store.TxDelete(txn, existing[i].ID, &models.MatchingEvaluationLog{}); err != nil {
				return fmt.Errorf("failed to delete old evaluation: %w", err)
			}
		}

		if err := store.TxInsert(txn, log.ID, log); err != nil {
			return fmt.Errorf("failed to insert evaluation log: %w", err)
		}
		for _, detail := range details {
			detail.EvaluationLogID = log.ID
			if err := store.TxInsert(txn, detail.ID, detail); err != nil {
				return fmt.Errorf("failed to insert evaluation detail: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *MatchingAuditStorage) ListEvaluationLogs(ctx context.Context, runID string) ([]*models.MatchingEvaluationLog, error) {
	var logs []models.MatchingEvaluationLog
	if err := s.db.Store().Find(&logs, badgerhold.Where("RunID").Eq(runID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list evaluation logs: %w", err)
	}

	result := make([]*models.MatchingEvaluationLog, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (s *MatchingAuditStorage) ListEvaluationDetails(ctx context.Context, evaluationLogID string) ([]*models.MatchingEvaluationDetailLog, error) {
	var details []models.MatchingEvaluationDetailLog
	if err := s.db.Store().Find(&details, badgerhold.Where("EvaluationLogID").Eq(evaluationLogID).SortBy("Position")); err != nil {
		return nil, fmt.Errorf("failed to list evaluation details: %w", err)
	}

	result := make([]*models.MatchingEvaluationDetailLog, len(details))
	for i := range details {
		result[i] = &details[i]
	}
	return result, nil
}

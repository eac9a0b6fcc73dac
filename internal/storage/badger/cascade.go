package badger

import (
	"fmt"

	"github.com/ternarybob/comparo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Tree deletes shared by the typed storages. BadgerHold has no foreign keys,
// so child rows are removed explicitly, deepest first.

func deleteEntityTree(store *badgerhold.Store, entityID string) error {
	var docs []models.Document
	if err := store.Find(&docs, badgerhold.Where("EntityID").Eq(entityID)); err != nil {
		return fmt.Errorf("failed to list documents for delete: %w", err)
	}
	for i := range docs {
		if err := deleteDocumentTree(store, docs[i].ID); err != nil {
			return err
		}
	}
	if err := store.Delete(entityID, &models.Entity{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

func deleteDocumentTree(store *badgerhold.Store, documentID string) error {
	if err := store.DeleteMatching(&models.DocumentChunk{}, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := store.Delete(documentID, &models.Document{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func deleteJobTree(store *badgerhold.Store, jobID string) error {
	var runs []models.MatchingJobRun
	if err := store.Find(&runs, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to list runs for delete: %w", err)
	}
	for i := range runs {
		if err := deleteRunAudit(store, runs[i].ID); err != nil {
			return err
		}
		if err := store.Delete(runs[i].ID, &models.MatchingJobRun{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to delete run: %w", err)
		}
	}

	var matches []models.Match
	if err := store.Find(&matches, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to list matches for delete: %w", err)
	}
	for i := range matches {
		if err := store.DeleteMatching(&models.MatchFeature{}, badgerhold.Where("MatchID").Eq(matches[i].ID)); err != nil {
			return fmt.Errorf("failed to delete match features: %w", err)
		}
	}
	if err := store.DeleteMatching(&models.Match{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete matches: %w", err)
	}

	if err := store.DeleteMatching(&models.MatchingJobTarget{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete job targets: %w", err)
	}
	if err := store.DeleteMatching(&models.MatchingJobUpdate{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete job updates: %w", err)
	}
	if err := store.Delete(jobID, &models.MatchingJob{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func deleteRunAudit(store *badgerhold.Store, runID string) error {
	var searches []models.MatchingSearchLog
	if err := store.Find(&searches, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return fmt.Errorf("failed to list search logs for delete: %w", err)
	}
	for i := range searches {
		if err := store.DeleteMatching(&models.MatchingSearchHitLog{}, badgerhold.Where("SearchLogID").Eq(searches[i].ID)); err != nil {
			return fmt.Errorf("failed to delete search hits: %w", err)
		}
	}
	if err := store.DeleteMatching(&models.MatchingSearchLog{}, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return fmt.Errorf("failed to delete search logs: %w", err)
	}

	var evals []models.MatchingEvaluationLog
	if err := store.Find(&evals, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return fmt.Errorf("failed to list evaluation logs for delete: %w", err)
	}
	for i := range evals {
		if err := store.DeleteMatching(&models.MatchingEvaluationDetailLog{}, badgerhold.Where("EvaluationLogID").Eq(evals[i].ID)); err != nil {
			return fmt.Errorf("failed to delete evaluation details: %w", err)
		}
	}
	if err := store.DeleteMatching(&models.MatchingEvaluationLog{}, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return fmt.Errorf("failed to delete evaluation logs: %w", err)
	}
	return nil
}

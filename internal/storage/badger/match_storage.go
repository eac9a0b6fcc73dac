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

// MatchStorage implements the MatchStorage interface for Badger
type MatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceMatches deletes the job's existing matches and features and writes
// the new set in a single Badger transaction. Readers see the old complete
// set or the new complete set, never a mix.
func (s *MatchStorage) ReplaceMatches(ctx context.Context, jobID string, entries []interfaces.MatchEntry) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	store := s.db.Store()
	err := store.Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.Match
		if err := store.TxFind(txn, &existing, badgerhold.Where("JobID").Eq(jobID)); err != nil {
			return fmt.Errorf("failed to find existing matches: %w", err)
		}
		for i := range existing {
			if err := store.TxDeleteMatching(txn, &models.MatchFeature{}, badgerhold.Where("MatchID").Eq(existing[i].ID)); err != nil {
				return fmt.Errorf("failed to delete old features: %w", err)
			}
			if err := store.TxDelete(txn, existing[i].ID, &models.Match{}); err != nil {
				return fmt.Errorf("failed to delete old match: %w", err)
			}
		}

		for _, entry := range entries {
			if entry.Match == nil {
				return fmt.Errorf("match entry without match row")
			}
			if err := store.TxInsert(txn, entry.Match.ID, entry.Match); err != nil {
				return fmt.Errorf("failed to insert match: %w", err)
			}
			for _, feature := range entry.Features {
				feature.MatchID = entry.Match.ID
				if err := store.TxInsert(txn, feature.ID, feature); err != nil {
					return fmt.Errorf("failed to insert feature: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Str("job_id", jobID).Int("matches", len(entries)).Msg("Replaced job matches")
	return nil
}

func (s *MatchStorage) ListMatches(ctx context.Context, jobID string) ([]*models.Match, error) {
	var matches []models.Match
	if err := s.db.Store().Find(&matches, badgerhold.Where("JobID").Eq(jobID).SortBy("Rank")); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	result := make([]*models.Match, len(matches))
	for i := range matches {
		result[i] = &matches[i]
	}
	return result, nil
}

func (s *MatchStorage) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var match models.Match
	if err := s.db.Store().Get(id, &match); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("match not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &match, nil
}

func (s *MatchStorage) ListFeatures(ctx context.Context, matchID string) ([]*models.MatchFeature, error) {
	var features []models.MatchFeature
	if err := s.db.Store().Find(&features, badgerhold.Where("MatchID").Eq(matchID).SortBy("Position")); err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	result := make([]*models.MatchFeature, len(features))
	for i := range features {
		result[i] = &features[i]
	}
	return result, nil
}

func (s *MatchStorage) DeleteMatches(ctx context.Context, jobID string) error {
	return s.ReplaceMatches(ctx, jobID, nil)
}

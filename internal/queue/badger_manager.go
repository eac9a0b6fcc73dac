package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// queueMessage is the envelope stored in Badger
type queueMessage struct {
	ID           string             `json:"id"`
	Body         models.TaskMessage `json:"body"`
	EnqueuedAt   time.Time          `json:"enqueued_at"`
	VisibleAt    time.Time          `json:"visible_at"`
	ReceiveCount int                `json:"receive_count"`
}

// BadgerManager implements a persistent at-least-once queue on BadgerDB.
// Each message has a data row keyed by id and a visibility index row keyed by
// (visible_at, id); claiming a message moves its index row forward by the
// visibility timeout, so unacknowledged work resurfaces on its own.
type BadgerManager struct {
	db     *badger.DB
	config Config
	logger arbor.ILogger
}

// NewBadgerManager creates a Badger-backed queue manager. The database handle
// is shared with the storage layer and closed there.
func NewBadgerManager(db *badger.DB, config Config, logger arbor.ILogger) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	return &BadgerManager{db: db, config: config, logger: logger}, nil
}

// Enqueue adds a task, immediately visible
func (m *BadgerManager) Enqueue(ctx context.Context, msg *models.TaskMessage) error {
	return m.enqueue(msg, 0)
}

// EnqueueWithDelay adds a task that becomes visible after the delay. Retry
// backoff is built on this.
func (m *BadgerManager) EnqueueWithDelay(ctx context.Context, msg *models.TaskMessage, delay time.Duration) error {
	return m.enqueue(msg, delay)
}

func (m *BadgerManager) enqueue(msg *models.TaskMessage, delay time.Duration) error {
	if msg == nil {
		return errors.New("task message is required")
	}

	now := time.Now()
	qMsg := queueMessage{
		ID:         uuid.New().String(),
		Body:       *msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(qMsg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, qMsg.ID), []byte{})
	})
}

// Receive claims the next visible task. Returns models.ErrNoMessage when
// nothing is ready. The returned delete function acknowledges the task;
// without it the task resurfaces after the visibility timeout.
func (m *BadgerManager) Receive(ctx context.Context) (*interfaces.ReceivedTask, func() error, error) {
	var qMsg queueMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			// Index keys sort by timestamp; the first future entry ends the scan
			if ts.After(now) {
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index row, clean it up and keep scanning
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			// Over the receive budget: drop as poison so it cannot loop forever
			if qMsg.ReceiveCount >= m.config.MaxReceive {
				m.logger.Warn().
					Str("task_id", qMsg.ID).
					Str("task_type", qMsg.Body.Type).
					Int("receive_count", qMsg.ReceiveCount).
					Msg("Dropping poison message")
				if err := txn.Delete(indexKey); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			qMsg.ReceiveCount++
			qMsg.VisibleAt = now.Add(m.config.VisibilityTimeout)

			data, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(qMsg.ID), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			return txn.Set(m.indexKey(qMsg.VisibleAt, qMsg.ID), []byte{})
		}

		return models.ErrNoMessage
	})
	if err != nil {
		return nil, nil, err
	}

	task := &interfaces.ReceivedTask{
		ID:           qMsg.ID,
		Message:      qMsg.Body,
		ReceiveCount: qMsg.ReceiveCount,
	}
	return task, func() error { return m.delete(qMsg.ID) }, nil
}

// Extend pushes the visibility timeout of a claimed task further out
func (m *BadgerManager) Extend(ctx context.Context, taskID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(taskID))
		if err != nil {
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldVisibleAt := qMsg.VisibleAt
		qMsg.VisibleAt = time.Now().Add(duration)

		data, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(taskID), data); err != nil {
			return err
		}
		if err := txn.Delete(m.indexKey(oldVisibleAt, taskID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, taskID), []byte{})
	})
}

// Length counts the messages currently in the queue, visible or not
func (m *BadgerManager) Length(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.config.QueueName))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close is a no-op; the Badger handle belongs to the storage layer
func (m *BadgerManager) Close() error {
	return nil
}

func (m *BadgerManager) delete(id string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil // Already deleted
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(qMsg.VisibleAt, id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(m.msgKey(id))
	})
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.config.QueueName, id))
}

func (m *BadgerManager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.config.QueueName))
}

// indexKey zero-pads the nanosecond timestamp so byte order matches time order
func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.config.QueueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", errors.New("invalid index key")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digit timestamp, colon, at least one id byte
		return time.Time{}, "", errors.New("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}

var _ interfaces.QueueManager = (*BadgerManager)(nil)

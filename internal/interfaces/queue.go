package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/comparo/internal/models"
)

// ReceivedTask is a claimed queue message plus its redelivery bookkeeping
type ReceivedTask struct {
	ID           string
	Message      models.TaskMessage
	ReceiveCount int
}

// QueueManager manages the persistent task queue. Delivery is at-least-once:
// a claimed message becomes visible again after the visibility timeout unless
// deleted, and messages over the receive budget are dropped as poison.
type QueueManager interface {
	Enqueue(ctx context.Context, msg *models.TaskMessage) error
	EnqueueWithDelay(ctx context.Context, msg *models.TaskMessage, delay time.Duration) error
	Receive(ctx context.Context) (*ReceivedTask, func() error, error)
	Extend(ctx context.Context, taskID string, duration time.Duration) error
	Length(ctx context.Context) (int, error)
	Close() error
}

// TaskHandler processes one claimed task
type TaskHandler func(ctx context.Context, msg *models.TaskMessage) error

// WorkerPool dispatches claimed tasks to registered handlers
type WorkerPool interface {
	RegisterHandler(taskType string, handler TaskHandler)
	Start() error
	Stop() error
}

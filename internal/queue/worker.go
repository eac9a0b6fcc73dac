package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Pool runs a fixed set of workers that poll the queue and dispatch claimed
// tasks to registered handlers by task type
type Pool struct {
	queue    interfaces.QueueManager
	config   Config
	handlers map[string]interfaces.TaskHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPool creates a worker pool. Handlers must be registered before Start.
func NewPool(queue interfaces.QueueManager, config Config, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:    queue,
		config:   config,
		handlers: make(map[string]interfaces.TaskHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// RegisterHandler registers the handler for a task type
func (p *Pool) RegisterHandler(taskType string, handler interfaces.TaskHandler) {
	p.handlers[taskType] = handler
	p.logger.Debug().
		Str("task_type", taskType).
		Msg("Task handler registered")
}

// Start launches the worker goroutines
func (p *Pool) Start() error {
	p.logger.Info().
		Int("concurrency", p.config.Concurrency).
		Msg("Starting worker pool")

	for i := 0; i < p.config.Concurrency; i++ {
		go p.worker(i)
	}
	return nil
}

// Stop cancels all workers. In-flight handlers see the cancellation through
// their context; unacknowledged tasks resurface after the visibility timeout.
func (p *Pool) Stop() error {
	p.logger.Info().Msg("Stopping worker pool")
	p.cancel()
	return nil
}

func (p *Pool) worker(workerID int) {
	// Stagger starts so workers do not all hit the queue on the same tick
	stagger := (p.config.PollInterval / time.Duration(p.config.Concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-time.After(stagger):
		case <-p.ctx.Done():
			return
		}
	}

	p.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain until the queue is empty, then go back to polling
			for {
				err := p.processOne(workerID)
				if err == nil {
					continue
				}
				if !errors.Is(err, models.ErrNoMessage) {
					p.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing task")
				}
				break
			}
		}
	}
}

// processOne claims and runs a single task. The message is acknowledged in
// every outcome except handler failure, where it stays claimed and resurfaces
// after the visibility timeout for another attempt.
func (p *Pool) processOne(workerID int) error {
	task, ack, err := p.queue.Receive(p.ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoMessage) {
			return err
		}
		return fmt.Errorf("receive task: %w", err)
	}

	logger := p.logger.WithCorrelationId(task.ID)

	handler, exists := p.handlers[task.Message.Type]
	if !exists {
		logger.Error().
			Str("task_type", task.Message.Type).
			Msg("No handler registered for task type")
		if ackErr := ack(); ackErr != nil {
			logger.Warn().Err(ackErr).Msg("Failed to delete unroutable task")
		}
		return fmt.Errorf("no handler for task type: %s", task.Message.Type)
	}

	logger.Debug().
		Str("task_type", task.Message.Type).
		Int("worker_id", workerID).
		Int("receive_count", task.ReceiveCount).
		Msg("Processing task")

	start := time.Now()
	handlerErr := handler(p.ctx, &task.Message)
	duration := time.Since(start)

	if handlerErr != nil {
		logger.Error().
			Err(handlerErr).
			Str("task_type", task.Message.Type).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Task handler failed")
		// Leave unacknowledged: redelivery happens after the visibility
		// timeout, and the receive budget caps total attempts
		return handlerErr
	}

	logger.Info().
		Str("task_type", task.Message.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Task completed")

	if err := ack(); err != nil {
		logger.Warn().
			Err(err).
			Msg("Failed to delete task after successful processing")
		return err
	}
	return nil
}

var _ interfaces.WorkerPool = (*Pool)(nil)

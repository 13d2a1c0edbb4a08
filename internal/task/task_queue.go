package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Job is a unit of deferred work scheduled onto the worker pool.
type Job func(ctx context.Context)

// Scheduler accepts deferred work. It is the scheduling hook lightweight
// execution depends on.
type Scheduler interface {
	// Schedule queues job for asynchronous execution.
	Schedule(job Job) error
}

// QueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type QueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs
	GetChannel() <-chan Job
}

// Queue implements a buffered job queue that satisfies both
// Scheduler and QueueReader
type Queue struct {
	mu     sync.RWMutex
	jobs   chan Job
	logger *slog.Logger
	closed bool
}

// Ensure Queue implements Scheduler and QueueReader
var (
	_ Scheduler   = (*Queue)(nil)
	_ QueueReader = (*Queue)(nil)
)

// NewQueue creates a new job queue with the specified buffer size
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:   make(chan Job, size),
		logger: logger,
	}
}

// Schedule adds a job to the queue for processing
// Returns an error if the queue is full or closed
func (q *Queue) Schedule(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close closes the queue, preventing further scheduling. Jobs already
// queued remain readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming jobs
func (q *Queue) GetChannel() <-chan Job {
	return q.jobs
}

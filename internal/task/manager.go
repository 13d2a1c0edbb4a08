package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/lingua-api/internal/events"
)

// ManagerConfig holds configuration for the task manager
type ManagerConfig struct {
	// WorkerCount determines how many concurrent workers run lightweight tasks
	WorkerCount int

	// QueueSize determines the buffer size of the lightweight work queue
	QueueSize int
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount: DefaultWorkerPoolConfig().WorkerCount,
		QueueSize:   100,
	}
}

// ExecutorDeps are the Manager-owned collaborators handed to an executor
// factory. Resolver is a back-reference to the Manager's registry.
type ExecutorDeps struct {
	Resolver  Resolver
	Scheduler Scheduler
	Emitter   events.EventEmitter
	Logger    *slog.Logger
}

// ExecutorFactory builds the Manager's executor from its dependencies.
type ExecutorFactory func(deps ExecutorDeps) (Executor, error)

// Manager is the single entry point application code uses to submit and
// inspect tasks. It owns the registry and the lightweight work queue, and
// delegates execution to the executor built by its factory.
type Manager struct {
	registry *Registry
	queue    *Queue
	pool     *WorkerPool
	executor Executor
	logger   *slog.Logger

	stopOnce sync.Once
}

// NewManager creates a Manager. The factory receives the Manager's registry as
// a Resolver and its queue as a Scheduler. emitter may be nil.
func NewManager(
	config ManagerConfig,
	factory ExecutorFactory,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (*Manager, error) {
	if factory == nil {
		return nil, errors.New("executor factory cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultManagerConfig().QueueSize
	}

	logger = logger.With("component", "task_manager")
	registry := NewRegistry(logger)
	queue := NewQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	executor, err := factory(ExecutorDeps{
		Resolver:  registry,
		Scheduler: queue,
		Emitter:   emitter,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build task executor: %w", err)
	}
	if executor == nil {
		return nil, errors.New("executor factory returned nil executor")
	}

	return &Manager{
		registry: registry,
		queue:    queue,
		pool:     pool,
		executor: executor,
		logger:   logger,
	}, nil
}

// Registry returns the registry handlers are registered into.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Executor returns the executor submissions are delegated to.
func (m *Manager) Executor() Executor {
	return m.executor
}

// Start launches the lightweight worker pool.
func (m *Manager) Start() {
	m.pool.Start()
}

// Stop stops the executor, closes the work queue and waits for queued
// lightweight tasks to finish, up to ctx's deadline.
func (m *Manager) Stop(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		if s, ok := m.executor.(Stopper); ok {
			if stopErr := s.Stop(ctx); stopErr != nil {
				m.logger.Error("failed to stop task executor", "error", stopErr)
				err = stopErr
			}
		}
		m.queue.Close()
		err = errors.Join(err, m.pool.Stop(ctx))
	})
	return err
}

// Submit validates the submission and hands it to the executor. It returns as
// soon as the task is scheduled; it never waits for the handler.
//
// payload may be any JSON-encodable value; json.RawMessage and []byte are
// forwarded as-is.
func (m *Manager) Submit(ctx context.Context, name string, payload any, opts ...Option) (string, error) {
	handler, err := m.registry.Resolve(name)
	if err != nil {
		return "", err
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	if err := handler.Validate(raw); err != nil {
		return "", err
	}

	taskID, err := m.executor.Submit(ctx, Invocation{Name: name, Payload: raw}, applyOptions(opts))
	if err != nil {
		m.logger.Error("failed to submit task", "task_name", name, "error", err)
		return "", err
	}
	return taskID, nil
}

// GetResult returns the record for taskID, or nil if it is unknown or has
// expired.
func (m *Manager) GetResult(ctx context.Context, taskID string) (*Result, error) {
	return m.executor.GetResult(ctx, taskID)
}

// Cancel requests cancellation of taskID. A true result means the request
// was accepted, not that execution stopped.
func (m *Manager) Cancel(ctx context.Context, taskID string) (bool, error) {
	return m.executor.Cancel(ctx, taskID)
}

// encodePayload converts a submission payload into JSON.
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
		}
		return p, nil
	case []byte:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
		}
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return raw, nil
	}
}

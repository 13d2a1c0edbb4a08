package distributed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/events"
	"github.com/phrazzld/lingua-api/internal/task"
)

// ExecutorName is the executor name reported in events and metrics.
const ExecutorName = "distributed"

// Defaults applied when Config leaves a field unset.
const (
	DefaultQueue      = "default"
	DefaultMaxRetries = 3
	DefaultRetryDelay = 60 * time.Second
)

// Enqueuer is the subset of *asynq.Client the executor needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector is the subset of *asynq.Inspector the executor needs.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	CancelProcessing(id string) error
	ArchiveTask(queue, id string) error
}

// Config holds configuration for distributed execution
type Config struct {
	// MaxRetries is how many times a failing task is retried before it is
	// archived as failed. Negative values disable retries.
	MaxRetries int

	// ResultTTL is how long completed tasks stay queryable on the broker.
	ResultTTL time.Duration

	// DefaultQueue receives every task without an explicit queue mapping.
	DefaultQueue string

	// TaskQueues maps task names onto broker queues.
	TaskQueues map[string]string
}

// ConfigFromTasks converts task settings into broker settings. A configured
// max_retries of 0 disables retries.
func ConfigFromTasks(cfg config.TasksConfig) Config {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	return Config{
		MaxRetries:   maxRetries,
		ResultTTL:    cfg.ResultTTL,
		DefaultQueue: cfg.DefaultQueue,
		TaskQueues:   cfg.TaskQueues,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = task.DefaultResultTTL
	}
	if c.DefaultQueue == "" {
		c.DefaultQueue = DefaultQueue
	}
	return c
}

// QueueFor returns the broker queue a task name is enqueued on.
func (c Config) QueueFor(name string) string {
	if q, ok := c.TaskQueues[name]; ok && q != "" {
		return q
	}
	if c.DefaultQueue == "" {
		return DefaultQueue
	}
	return c.DefaultQueue
}

// Queues returns every queue tasks may be enqueued on, in sorted order.
func (c Config) Queues() []string {
	seen := map[string]struct{}{c.QueueFor(""): {}}
	for _, q := range c.TaskQueues {
		if q != "" {
			seen[q] = struct{}{}
		}
	}
	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// Executor submits tasks to the broker and reads their state back. It
// implements task.Executor.
type Executor struct {
	client    Enqueuer
	inspector Inspector
	config    Config
	emitter   events.EventEmitter
	logger    *slog.Logger
}

// Ensure Executor implements task.Executor
var _ task.Executor = (*Executor)(nil)

// NewExecutor creates a distributed executor. A nil client or inspector
// makes the corresponding operations fail with task.ErrBackendUnavailable.
// emitter may be nil.
func NewExecutor(
	client Enqueuer,
	inspector Inspector,
	config Config,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		client:    client,
		inspector: inspector,
		config:    config.withDefaults(),
		emitter:   emitter,
		logger:    logger.With("component", "distributed_executor"),
	}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Submit implements task.Executor. Delayed tasks are scheduled on the
// broker, which holds them until they are due.
func (e *Executor) Submit(ctx context.Context, inv task.Invocation, opts task.SubmitOptions) (string, error) {
	if e.client == nil {
		return "", task.ErrBackendUnavailable
	}

	taskID := opts.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	queue := e.config.QueueFor(inv.Name)

	enqueueOpts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(queue),
		asynq.MaxRetry(e.config.MaxRetries),
		asynq.Retention(e.config.ResultTTL),
	}
	if opts.Delay > 0 {
		enqueueOpts = append(enqueueOpts, asynq.ProcessIn(opts.Delay))
	}

	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(inv.Name, inv.Payload), enqueueOpts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", fmt.Errorf("%w: %q", task.ErrDuplicateTask, taskID)
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	e.logger.Debug("task enqueued",
		"task_id", info.ID,
		"task_name", inv.Name,
		"queue", queue,
		"delay", opts.Delay)

	if e.emitter != nil {
		event := events.NewTaskEvent(events.KindSubmitted, info.ID, inv.Name, ExecutorName, string(task.StatusPending))
		if err := e.emitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
			e.logger.Warn("failed to emit task event", "task_id", info.ID, "error", err)
		}
	}

	return info.ID, nil
}

// GetResult implements task.Executor. It returns nil for tasks the broker
// does not know, including completed tasks past their retention.
func (e *Executor) GetResult(ctx context.Context, taskID string) (*task.Result, error) {
	info, _, err := e.lookup(taskID)
	if err != nil || info == nil {
		return nil, err
	}
	return resultFromInfo(info)
}

// Cancel implements task.Executor. Running tasks receive a cancellation
// signal; waiting tasks are archived so they never run. Finished or
// unknown tasks are not cancellable.
func (e *Executor) Cancel(ctx context.Context, taskID string) (bool, error) {
	info, queue, err := e.lookup(taskID)
	if err != nil || info == nil {
		return false, err
	}

	log := e.logger.With("task_id", taskID, "queue", queue, "state", info.State.String())

	switch info.State {
	case asynq.TaskStateActive:
		if err := e.inspector.CancelProcessing(taskID); err != nil {
			return false, fmt.Errorf("failed to cancel running task: %w", err)
		}
		log.Info("cancellation signal sent to running task")
		return true, nil

	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		if err := e.inspector.ArchiveTask(queue, taskID); err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("failed to cancel queued task: %w", err)
		}
		log.Info("queued task cancelled")
		return true, nil

	default:
		return false, nil
	}
}

// lookup finds taskID on any of the configured queues.
func (e *Executor) lookup(taskID string) (*asynq.TaskInfo, string, error) {
	if e.inspector == nil {
		return nil, "", task.ErrBackendUnavailable
	}

	for _, queue := range e.config.Queues() {
		info, err := e.inspector.GetTaskInfo(queue, taskID)
		switch {
		case err == nil:
			return info, queue, nil
		case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
			continue
		default:
			return nil, "", fmt.Errorf("failed to read task state: %w", err)
		}
	}
	return nil, "", nil
}

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lingua-api/internal/events"
)

// ExecutorLightweight is the executor name reported in events and metrics.
const ExecutorLightweight = "lightweight"

// DefaultResultTTL is how long task records stay visible in the result store.
const DefaultResultTTL = time.Hour

// LightweightConfig holds configuration for the lightweight executor
type LightweightConfig struct {
	// ResultTTL is the retention window of records in the result store.
	// If zero, defaults to DefaultResultTTL.
	ResultTTL time.Duration
}

// LightweightExecutor runs tasks inside the current process on a
// Manager-owned worker pool. Handlers are never preempted; Cancel only takes
// effect while a task is still pending. Handler failures are recorded in the
// result store and never retried.
type LightweightExecutor struct {
	store     ResultStore
	resolver  Resolver
	scheduler Scheduler
	emitter   events.EventEmitter
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	delayed map[uint64]delayedJob
	nextKey uint64
	stopped bool
}

// delayedJob is a submission waiting on its start delay.
type delayedJob struct {
	taskID   string
	taskName string
	timer    *time.Timer
}

// Ensure LightweightExecutor implements Executor and Stopper
var (
	_ Executor = (*LightweightExecutor)(nil)
	_ Stopper  = (*LightweightExecutor)(nil)
)

// NewLightweightExecutor creates an executor that schedules work through
// scheduler and resolves handlers through resolver. A nil scheduler makes
// every submission fail with ErrSchedulingHookMissing. emitter may be nil.
func NewLightweightExecutor(
	store ResultStore,
	resolver Resolver,
	scheduler Scheduler,
	emitter events.EventEmitter,
	config LightweightConfig,
	logger *slog.Logger,
) *LightweightExecutor {
	ttl := config.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	return &LightweightExecutor{
		store:     store,
		resolver:  resolver,
		scheduler: scheduler,
		emitter:   emitter,
		ttl:       ttl,
		logger:    logger.With("component", "lightweight_executor"),
		now:       time.Now,
		delayed:   make(map[uint64]delayedJob),
	}
}

// Submit implements Executor. The pending record is written before Submit
// returns, so an immediate GetResult always finds it.
func (e *LightweightExecutor) Submit(ctx context.Context, inv Invocation, opts SubmitOptions) (string, error) {
	if e.scheduler == nil {
		return "", ErrSchedulingHookMissing
	}

	taskID := opts.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	log := e.logger.With("task_id", taskID, "task_name", inv.Name)

	created, err := e.store.Create(ctx, NewPendingResult(taskID), e.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to store pending task result: %w", err)
	}
	if !created {
		return "", fmt.Errorf("%w: %q", ErrDuplicateTask, taskID)
	}

	job := e.job(inv, taskID)

	if opts.Delay > 0 {
		if !e.scheduleAfter(opts.Delay, inv.Name, taskID, job, log) {
			if delErr := e.store.Delete(ctx, taskID); delErr != nil {
				log.Error("failed to remove pending record after scheduling failure", "error", delErr)
			}
			return "", fmt.Errorf("%w: %w", ErrSchedulingHookMissing, ErrQueueClosed)
		}
	} else if err := e.scheduler.Schedule(job); err != nil {
		if delErr := e.store.Delete(ctx, taskID); delErr != nil {
			log.Error("failed to remove pending record after scheduling failure", "error", delErr)
		}
		if errors.Is(err, ErrQueueClosed) {
			return "", fmt.Errorf("%w: %w", ErrSchedulingHookMissing, err)
		}
		return "", fmt.Errorf("failed to schedule task: %w", err)
	}

	log.Debug("task submitted", "delay", opts.Delay)
	e.emit(ctx, events.NewTaskEvent(events.KindSubmitted, taskID, inv.Name, ExecutorLightweight, string(StatusPending)))

	return taskID, nil
}

// scheduleAfter hands job to the scheduler once delay has elapsed. It
// reports false once the executor has stopped.
func (e *LightweightExecutor) scheduleAfter(delay time.Duration, taskName, taskID string, job Job, log *slog.Logger) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}

	e.nextKey++
	key := e.nextKey
	timer := time.AfterFunc(delay, func() {
		if !e.claimDelayed(key) {
			return
		}
		if err := e.scheduler.Schedule(job); err != nil {
			log.Error("failed to schedule delayed task", "error", err)
			if _, err := e.failPending(context.Background(), taskName, taskID, fmt.Sprintf("failed to schedule task: %v", err)); err != nil {
				log.Error("failed to record scheduling failure", "error", err)
			}
		}
	})
	e.delayed[key] = delayedJob{taskID: taskID, taskName: taskName, timer: timer}
	return true
}

// claimDelayed removes a fired timer from the tracked set. It reports false
// when Stop already took it.
func (e *LightweightExecutor) claimDelayed(key uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.delayed[key]; !ok {
		return false
	}
	delete(e.delayed, key)
	return true
}

// Stop implements Stopper. Delayed submissions still waiting on their timers
// are dropped and their pending records fail; later delayed submissions are
// rejected.
func (e *LightweightExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	delayed := e.delayed
	e.delayed = make(map[uint64]delayedJob)
	e.mu.Unlock()

	var errs []error
	for _, d := range delayed {
		d.timer.Stop()
		if _, err := e.failPending(ctx, d.taskName, d.taskID, shutdownReason); err != nil {
			errs = append(errs, err)
		}
	}
	if len(delayed) > 0 {
		e.logger.Info("dropped delayed tasks on shutdown", "count", len(delayed))
	}
	return errors.Join(errs...)
}

// GetResult implements Executor.
func (e *LightweightExecutor) GetResult(ctx context.Context, taskID string) (*Result, error) {
	result, err := e.store.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read task result: %w", err)
	}
	return result, nil
}

// Cancel implements Executor. Only pending tasks can be cancelled; they move
// straight to failure with a "cancelled" error.
func (e *LightweightExecutor) Cancel(ctx context.Context, taskID string) (bool, error) {
	return e.failPending(ctx, "", taskID, cancelledReason)
}

// failPending moves a pending record to failure. It reports whether the
// record was still pending.
func (e *LightweightExecutor) failPending(ctx context.Context, taskName, taskID, reason string) (bool, error) {
	current, err := e.store.Get(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to read task result: %w", err)
	}
	if current == nil || current.Status != StatusPending {
		return false, nil
	}

	applied, err := e.store.Transition(ctx, StatusPending, current.Failed(e.now(), reason), e.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to store task result: %w", err)
	}
	if applied {
		e.logger.Info("pending task failed before start", "task_id", taskID, "reason", reason)
		e.emit(ctx, events.NewTaskEvent(events.KindTransition, taskID, taskName, ExecutorLightweight, string(StatusFailure)))
	}
	return applied, nil
}

// job builds the deferred work for one submission.
func (e *LightweightExecutor) job(inv Invocation, taskID string) Job {
	return func(ctx context.Context) {
		e.execute(ctx, inv, taskID)
	}
}

// execute runs a single task through pending -> running -> terminal. Each
// transition is a conditional write on the previous status.
func (e *LightweightExecutor) execute(ctx context.Context, inv Invocation, taskID string) {
	log := e.logger.With("task_id", taskID, "task_name", inv.Name)

	current, err := e.store.Get(ctx, taskID)
	if err != nil {
		log.Error("failed to read task result before start", "error", err)
		return
	}
	if current == nil {
		log.Warn("task record expired before execution started")
		return
	}
	if current.Status != StatusPending {
		log.Debug("skipping task that is no longer pending", "status", current.Status)
		return
	}

	running := current.Running(e.now())
	applied, err := e.store.Transition(ctx, StatusPending, running, e.ttl)
	if err != nil {
		log.Error("failed to update task status to running", "error", err)
		return
	}
	if !applied {
		log.Debug("task left pending before it could start")
		return
	}
	e.emit(ctx, events.NewTaskEvent(events.KindTransition, taskID, inv.Name, ExecutorLightweight, string(StatusRunning)))

	log.Info("processing task")
	started := e.now()
	output, err := e.invoke(ctx, inv)

	var final *Result
	if err != nil {
		log.Error("task execution failed", "error", err)
		final = running.Failed(e.now(), err.Error())
	} else {
		log.Info("task completed successfully")
		final = running.Succeeded(e.now(), output)
	}

	// The record may have expired while the handler ran.
	applied, err = e.store.Transition(context.WithoutCancel(ctx), StatusRunning, final, e.ttl)
	if err != nil {
		log.Error("failed to store final task result", "status", final.Status, "error", err)
		return
	}
	if !applied {
		log.Warn("task record disappeared while running", "status", final.Status)
		return
	}

	event := events.NewTaskEvent(events.KindTransition, taskID, inv.Name, ExecutorLightweight, string(final.Status))
	event.Duration = e.now().Sub(started)
	e.emit(ctx, event)
}

// invoke resolves and runs the handler, converting panics and resolution
// failures into errors.
func (e *LightweightExecutor) invoke(ctx context.Context, inv Invocation) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{TaskName: inv.Name, Err: newPanicError(r)}
		}
	}()

	handler, err := e.resolver.Resolve(inv.Name)
	if err != nil {
		return nil, err
	}

	output, err = handler.Invoke(ctx, inv.Payload)
	if err != nil {
		return nil, &ExecutionError{TaskName: inv.Name, Err: err}
	}
	return output, nil
}

func (e *LightweightExecutor) emit(ctx context.Context, event *events.TaskEvent) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("failed to emit task event", "task_id", event.TaskID, "error", err)
	}
}

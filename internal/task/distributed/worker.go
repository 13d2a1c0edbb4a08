package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/lingua-api/internal/events"
	"github.com/phrazzld/lingua-api/internal/task"
)

// Worker is the asynq handler that runs registered task handlers. It lives
// in the worker process, which shares the task registry with the API
// process.
type Worker struct {
	resolver  task.Resolver
	inspector Inspector
	emitter   events.EventEmitter
	logger    *slog.Logger
	now       func() time.Time
}

// Ensure Worker implements asynq.Handler
var _ asynq.Handler = (*Worker)(nil)

// NewWorker creates a worker that resolves handlers through resolver. The
// inspector is used to recover the envelope written by earlier attempts
// and may be nil. emitter may be nil.
func NewWorker(resolver task.Resolver, inspector Inspector, emitter events.EventEmitter, logger *slog.Logger) *Worker {
	return &Worker{
		resolver:  resolver,
		inspector: inspector,
		emitter:   emitter,
		logger:    logger.With("component", "distributed_worker"),
		now:       time.Now,
	}
}

// ProcessTask implements asynq.Handler. A returned error makes the broker
// schedule a retry, unless it wraps asynq.SkipRetry.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	attempt, _ := asynq.GetRetryCount(ctx)

	log := w.logger.With("task_id", taskID, "task_name", t.Type(), "queue", queue, "attempt", attempt)

	env := w.previousEnvelope(queue, taskID, attempt, log)
	if env.StartedAt == nil {
		started := w.now().UTC()
		env.StartedAt = &started
	}
	w.write(t, env, log)
	w.emit(ctx, taskID, t.Type(), task.StatusRunning, 0)

	log.Info("processing task")
	started := w.now()
	output, err := w.invoke(ctx, t)
	elapsed := w.now().Sub(started)

	if err != nil {
		if ctx.Err() != nil {
			log.Warn("task cancelled while running", "error", err)
			env.FirstError = cancelledReason
			w.write(t, env, log)
			w.emit(ctx, taskID, t.Type(), task.StatusFailure, elapsed)
			return fmt.Errorf("%s: %w", cancelledReason, asynq.SkipRetry)
		}

		if env.FirstError == "" {
			env.FirstError = err.Error()
			w.write(t, env, log)
		}

		if errors.Is(err, task.ErrNotRegistered) || errors.Is(err, task.ErrInvalidPayload) {
			log.Error("task cannot succeed, not retrying", "error", err)
			w.emit(ctx, taskID, t.Type(), task.StatusFailure, elapsed)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		maxRetry, _ := asynq.GetMaxRetry(ctx)
		status := task.StatusRetry
		if attempt >= maxRetry {
			status = task.StatusFailure
		}
		log.Error("task execution failed", "error", err, "max_retry", maxRetry)
		w.emit(ctx, taskID, t.Type(), status, elapsed)
		return err
	}

	env.Result = output
	w.write(t, env, log)
	w.emit(ctx, taskID, t.Type(), task.StatusSuccess, elapsed)
	log.Info("task completed successfully", "duration", elapsed)
	return nil
}

// invoke resolves and runs the handler, converting panics into errors.
func (w *Worker) invoke(ctx context.Context, t *asynq.Task) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &task.ExecutionError{TaskName: t.Type(), Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	handler, err := w.resolver.Resolve(t.Type())
	if err != nil {
		return nil, err
	}

	output, err = handler.Invoke(ctx, t.Payload())
	if err != nil {
		return nil, &task.ExecutionError{TaskName: t.Type(), Err: err}
	}
	return output, nil
}

// previousEnvelope recovers the envelope of earlier attempts so retries
// keep the first start time and failure message.
func (w *Worker) previousEnvelope(queue, taskID string, attempt int, log *slog.Logger) envelope {
	if attempt == 0 || w.inspector == nil || taskID == "" {
		return envelope{}
	}

	info, err := w.inspector.GetTaskInfo(queue, taskID)
	if err != nil {
		log.Warn("failed to read previous attempt state", "error", err)
		return envelope{}
	}
	env, err := decodeEnvelope(info.Result)
	if err != nil {
		log.Warn("discarding unreadable task envelope", "error", err)
		return envelope{}
	}
	return env
}

// write stores env as the task result. Tasks not created by an asynq server
// have no result writer.
func (w *Worker) write(t *asynq.Task, env envelope, log *slog.Logger) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := env.encode()
	if err != nil {
		log.Error("failed to encode task envelope", "error", err)
		return
	}
	if _, err := rw.Write(data); err != nil {
		log.Error("failed to write task envelope", "error", err)
	}
}

func (w *Worker) emit(ctx context.Context, taskID, name string, status task.Status, elapsed time.Duration) {
	if w.emitter == nil {
		return
	}
	event := events.NewTaskEvent(events.KindTransition, taskID, name, ExecutorName, string(status))
	event.Duration = elapsed
	if err := w.emitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		w.logger.Warn("failed to emit task event", "task_id", taskID, "error", err)
	}
}

// RetryDelay returns an asynq retry delay function with a fixed backoff.
func RetryDelay(delay time.Duration) asynq.RetryDelayFunc {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return func(n int, err error, t *asynq.Task) time.Duration {
		return delay
	}
}

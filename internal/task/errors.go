package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task execution layer
var (
	// ErrNotRegistered is returned when a submission names an unknown task.
	ErrNotRegistered = errors.New("task not registered")

	// ErrInvalidPayload is returned when a payload fails to decode or validate
	// against the registered handler's payload type.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrSchedulingHookMissing is returned when lightweight execution is
	// requested without a scheduler able to run deferred work.
	ErrSchedulingHookMissing = errors.New("scheduling hook missing")

	// ErrBackendUnavailable is returned by distributed operations when no
	// broker is configured.
	ErrBackendUnavailable = errors.New("distributed backend unavailable")

	// ErrQueueClosed is returned when scheduling onto a closed work queue.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrQueueFull is returned when the work queue has no free capacity.
	ErrQueueFull = errors.New("task queue is full")

	// ErrDuplicateTask is returned when a submission names a task ID that
	// still has a live record.
	ErrDuplicateTask = errors.New("task id already exists")
)

// ExecutionError wraps a failure raised by a task handler. It never reaches
// the submitter; its message is what ends up in Result.Error.
type ExecutionError struct {
	TaskName string
	Err      error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// newPanicError converts a recovered panic value into an error.
func newPanicError(v any) error {
	return fmt.Errorf("task panicked: %v", v)
}

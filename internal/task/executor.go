package task

import (
	"context"
	"encoding/json"
	"time"
)

// Invocation is a validated request to run a registered task.
type Invocation struct {
	// Name is the registered task name
	Name string

	// Payload is the JSON-encoded task argument, forwarded verbatim
	Payload json.RawMessage
}

// SubmitOptions carries the optional submission parameters.
type SubmitOptions struct {
	// TaskID is a caller-supplied identifier. When empty the executor
	// generates one.
	TaskID string

	// Delay postpones the first execution attempt.
	Delay time.Duration
}

// Option customizes a submission.
type Option func(*SubmitOptions)

// WithTaskID submits the task under a caller-supplied identifier.
func WithTaskID(id string) Option {
	return func(o *SubmitOptions) {
		o.TaskID = id
	}
}

// WithDelay postpones the first execution attempt by d.
func WithDelay(d time.Duration) Option {
	return func(o *SubmitOptions) {
		o.Delay = d
	}
}

// applyOptions folds opts into a SubmitOptions value.
func applyOptions(opts []Option) SubmitOptions {
	var o SubmitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}

// Executor is the capability every execution backend implements.
// Version: 1.0
type Executor interface {
	// Submit schedules the invocation and returns its task identifier
	// without waiting for execution.
	Submit(ctx context.Context, inv Invocation, opts SubmitOptions) (string, error)

	// GetResult returns the current record for taskID, or nil when the
	// identifier is unknown or its record has expired.
	GetResult(ctx context.Context, taskID string) (*Result, error)

	// Cancel requests cancellation of taskID and reports whether the
	// request was accepted.
	Cancel(ctx context.Context, taskID string) (bool, error)
}

// Stopper is implemented by executors holding work outside the Manager's
// queue. The Manager stops its executor before closing the queue.
type Stopper interface {
	Stop(ctx context.Context) error
}

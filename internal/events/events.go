package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the task execution layer.
const (
	// KindSubmitted is emitted once a task has been accepted by an executor.
	KindSubmitted = "submitted"

	// KindTransition is emitted whenever a task record changes status.
	KindTransition = "transition"
)

// TaskEvent describes a single change in a task's lifecycle.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind is one of the Kind* constants
	Kind string `json:"kind"`

	// TaskID identifies the task the event refers to
	TaskID string `json:"task_id"`

	// TaskName is the registered task name
	TaskName string `json:"task_name"`

	// Executor names the backend that handled the task
	Executor string `json:"executor"`

	// Status is the task status after the change
	Status string `json:"status"`

	// Duration is the execution time for terminal transitions of tasks
	// that actually ran
	Duration time.Duration `json:"duration,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a new TaskEvent of the given kind.
func NewTaskEvent(kind, taskID, taskName, executor, status string) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Kind:      kind,
		TaskID:    taskID,
		TaskName:  taskName,
		Executor:  executor,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts an ordinary function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows executors to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

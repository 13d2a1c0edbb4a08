package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskEvent(t *testing.T) {
	event := NewTaskEvent(KindTransition, "task-1", "echo", "lightweight", "running")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, KindTransition, event.Kind)
	assert.Equal(t, "task-1", event.TaskID)
	assert.Equal(t, "echo", event.TaskName)
	assert.Equal(t, "lightweight", event.Executor)
	assert.Equal(t, "running", event.Status)
	assert.Zero(t, event.Duration)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
}

func TestTaskEvent_JSON(t *testing.T) {
	event := NewTaskEvent(KindSubmitted, "task-2", "calculate_rating", "distributed", "pending")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "submitted", fields["kind"])
	assert.Equal(t, "task-2", fields["task_id"])
	assert.NotContains(t, fields, "duration", "zero duration should be omitted")
}

func TestEventHandlerFunc(t *testing.T) {
	var got *TaskEvent
	handler := EventHandlerFunc(func(ctx context.Context, event *TaskEvent) error {
		got = event
		return nil
	})

	event := NewTaskEvent(KindSubmitted, "task-3", "echo", "lightweight", "pending")
	require.NoError(t, handler.HandleEvent(context.Background(), event))
	assert.Same(t, event, got)
}

package distributed

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/lingua-api/internal/task"
)

// cancelledReason is reported for tasks removed from the broker before
// they finished.
const cancelledReason = "cancelled"

// statusFromState maps a broker task state onto the shared status
// vocabulary.
func statusFromState(state asynq.TaskState) task.Status {
	switch state {
	case asynq.TaskStateActive:
		return task.StatusRunning
	case asynq.TaskStateRetry:
		return task.StatusRetry
	case asynq.TaskStateCompleted:
		return task.StatusSuccess
	case asynq.TaskStateArchived:
		return task.StatusFailure
	default:
		// pending, scheduled and aggregating are all still waiting to run
		return task.StatusPending
	}
}

// resultFromInfo builds a Result from broker state and the worker envelope.
func resultFromInfo(info *asynq.TaskInfo) (*task.Result, error) {
	env, err := decodeEnvelope(info.Result)
	if err != nil {
		return nil, err
	}

	result := &task.Result{
		TaskID:    info.ID,
		Status:    statusFromState(info.State),
		StartedAt: env.StartedAt,
		Retries:   info.Retried,
	}
	// The broker moves a task back to pending once its retry delay has
	// elapsed. It has already run, so it stays in retry until it runs again.
	if result.Status == task.StatusPending && info.Retried > 0 {
		result.Status = task.StatusRetry
	}

	switch result.Status {
	case task.StatusSuccess:
		result.Result = env.Result
		result.CompletedAt = timePtr(info.CompletedAt)
	case task.StatusFailure:
		result.Error = failureMessage(env, info)
		result.CompletedAt = timePtr(info.LastFailedAt)
	case task.StatusRetry:
		result.Error = info.LastErr
	}

	if result.StartedAt != nil && result.CompletedAt != nil && result.CompletedAt.Before(*result.StartedAt) {
		result.CompletedAt = result.StartedAt
	}
	return result, nil
}

// failureMessage reports the first failure the worker saw, falling back to
// the broker's last error. A task archived without ever failing was
// cancelled.
func failureMessage(env envelope, info *asynq.TaskInfo) string {
	switch {
	case env.FirstError != "":
		return env.FirstError
	case info.LastErr != "":
		return info.LastErr
	default:
		return cancelledReason
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

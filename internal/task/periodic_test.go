package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	names    []string
	payloads []any
}

func (r *recordingSubmitter) Submit(ctx context.Context, name string, payload any, opts ...Option) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.payloads = append(r.payloads, payload)
	return "periodic-1", nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func TestPeriodicTask_Validate(t *testing.T) {
	registry := NewRegistry(setupTestLogger())
	Register(registry, "echo", echoTask)

	tests := []struct {
		name    string
		task    PeriodicTask
		wantErr error
		wantMsg string
	}{
		{name: "valid cron", task: PeriodicTask{Name: "echo", Schedule: "0 3 * * *", Payload: json.RawMessage(`{"msg":"x"}`)}},
		{name: "valid descriptor", task: PeriodicTask{Name: "echo", Schedule: "@every 1m", Payload: json.RawMessage(`{"msg":"x"}`)}},
		{name: "bad schedule", task: PeriodicTask{Name: "echo", Schedule: "every day", Payload: json.RawMessage(`{"msg":"x"}`)}, wantMsg: "invalid schedule"},
		{name: "unknown task", task: PeriodicTask{Name: "ghost", Schedule: "@hourly"}, wantErr: ErrNotRegistered},
		{name: "invalid payload", task: PeriodicTask{Name: "echo", Schedule: "@hourly", Payload: json.RawMessage(`{}`)}, wantErr: ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate(registry)
			switch {
			case tt.wantMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantMsg)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestPeriodicScheduler_SubmitsOnSchedule(t *testing.T) {
	submitter := &recordingSubmitter{}
	payload := json.RawMessage(`{"msg":"tick"}`)

	scheduler, err := NewPeriodicScheduler(submitter, []PeriodicTask{
		{Name: "echo", Schedule: "@every 1s", Payload: payload},
	}, setupTestLogger())
	require.NoError(t, err)

	scheduler.Start()
	require.Eventually(t, func() bool { return submitter.count() >= 1 }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))

	submitter.mu.Lock()
	defer submitter.mu.Unlock()
	assert.Equal(t, "echo", submitter.names[0])
	assert.Equal(t, payload, submitter.payloads[0])
}

func TestNewPeriodicScheduler_BadSchedule(t *testing.T) {
	_, err := NewPeriodicScheduler(&recordingSubmitter{}, []PeriodicTask{{Name: "echo", Schedule: "whenever"}}, setupTestLogger())
	assert.Error(t, err)
}

package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/task"
)

func TestPeriodicTasks(t *testing.T) {
	registry := task.NewRegistry(setupTestLogger())
	Register(registry, Dependencies{Logger: setupTestLogger()})

	got, err := PeriodicTasks(registry, []config.PeriodicTaskConfig{
		{
			Name:     CalculateRatingTask,
			Schedule: "@daily",
			Payload:  map[string]any{"resource_id": "r1", "impressions": 10},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CalculateRatingTask, got[0].Name)
	assert.Equal(t, "@daily", got[0].Schedule)
	assert.JSONEq(t, `{"resource_id":"r1","impressions":10}`, string(got[0].Payload))

	empty, err := PeriodicTasks(registry, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPeriodicTasks_Rejects(t *testing.T) {
	registry := task.NewRegistry(setupTestLogger())
	Register(registry, Dependencies{Logger: setupTestLogger()})

	tests := []struct {
		name  string
		entry config.PeriodicTaskConfig
		want  error
	}{
		{"unknown task", config.PeriodicTaskConfig{Name: "sync_everything", Schedule: "@hourly"}, task.ErrNotRegistered},
		{"missing required field", config.PeriodicTaskConfig{Name: CalculateRatingTask, Schedule: "@hourly"}, task.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PeriodicTasks(registry, []config.PeriodicTaskConfig{tt.entry})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := PeriodicTasks(registry, []config.PeriodicTaskConfig{{Name: CalculateRatingTask, Schedule: "sometimes"}})
	assert.Error(t, err)
}

package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingPolicy(t *testing.T) {
	policy := NewRoutingPolicy([]string{"evaluate_text", "", "bulk_import"}, true)

	assert.True(t, policy.IsHeavy("evaluate_text"))
	assert.False(t, policy.IsHeavy("calculate_rating"))
	assert.False(t, policy.IsHeavy(""))
	assert.True(t, policy.DistributedEnabled())
	assert.Equal(t, []string{"bulk_import", "evaluate_text"}, policy.HeavyTasks())
}

func TestRouter_Submit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name            string
		task            string
		heavy           []string
		enabled         bool
		withDistributed bool
		wantDistributed bool
	}{
		{"light task stays local", "calculate_rating", []string{"evaluate_text"}, true, true, false},
		{"heavy task goes distributed", "evaluate_text", []string{"evaluate_text"}, true, true, true},
		{"heavy task falls back when disabled", "evaluate_text", []string{"evaluate_text"}, false, true, false},
		{"heavy task falls back without backend", "evaluate_text", []string{"evaluate_text"}, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lw := newFakeExecutor("lw")
			dist := newFakeExecutor("dist")

			var distributed Executor
			if tt.withDistributed {
				distributed = dist
			}
			router := NewRouter(lw, distributed, NewRoutingPolicy(tt.heavy, tt.enabled), setupTestLogger())

			id, err := router.Submit(ctx, Invocation{Name: tt.task}, SubmitOptions{})
			require.NoError(t, err)

			if tt.wantDistributed {
				assert.Equal(t, "dist-task", id)
				assert.Len(t, dist.submissions(), 1)
				assert.Empty(t, lw.submissions())
			} else {
				assert.Equal(t, "lw-task", id)
				assert.Len(t, lw.submissions(), 1)
				assert.Empty(t, dist.submissions())
			}
		})
	}
}

func TestRouter_GetResult(t *testing.T) {
	ctx := context.Background()

	t.Run("lightweight record wins", func(t *testing.T) {
		lw := newFakeExecutor("lw")
		dist := newFakeExecutor("dist")
		lw.results["shared"] = &Result{TaskID: "shared", Status: StatusSuccess}
		dist.results["shared"] = &Result{TaskID: "shared", Status: StatusRunning}

		router := NewRouter(lw, dist, NewRoutingPolicy(nil, true), setupTestLogger())
		got, err := router.GetResult(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, got.Status)
	})

	t.Run("falls through to distributed", func(t *testing.T) {
		lw := newFakeExecutor("lw")
		dist := newFakeExecutor("dist")
		dist.results["remote"] = &Result{TaskID: "remote", Status: StatusRetry, Retries: 1}

		router := NewRouter(lw, dist, NewRoutingPolicy(nil, true), setupTestLogger())
		got, err := router.GetResult(ctx, "remote")
		require.NoError(t, err)
		assert.Equal(t, StatusRetry, got.Status)
		assert.Equal(t, 1, got.Retries)
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		router := NewRouter(newFakeExecutor("lw"), newFakeExecutor("dist"), NewRoutingPolicy(nil, true), setupTestLogger())
		got, err := router.GetResult(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("lightweight error does not hide distributed record", func(t *testing.T) {
		lw := newFakeExecutor("lw")
		lw.getErr = errors.New("store offline")
		dist := newFakeExecutor("dist")
		dist.results["remote"] = &Result{TaskID: "remote", Status: StatusPending}

		router := NewRouter(lw, dist, NewRoutingPolicy(nil, true), setupTestLogger())
		got, err := router.GetResult(ctx, "remote")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)

		_, err = router.GetResult(ctx, "nope")
		assert.EqualError(t, err, "store offline")
	})

	t.Run("no distributed executor", func(t *testing.T) {
		router := NewRouter(newFakeExecutor("lw"), nil, NewRoutingPolicy(nil, false), setupTestLogger())
		got, err := router.GetResult(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRouter_Cancel(t *testing.T) {
	ctx := context.Background()

	lw := newFakeExecutor("lw")
	lw.cancelResult = true
	dist := newFakeExecutor("dist")
	dist.cancelResult = true
	lw.results["local"] = NewPendingResult("local")

	router := NewRouter(lw, dist, NewRoutingPolicy(nil, true), setupTestLogger())

	ok, err := router.Cancel(ctx, "local")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"local"}, lw.cancels())
	assert.Empty(t, dist.cancels())

	ok, err = router.Cancel(ctx, "remote")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"remote"}, dist.cancels())
}

type stoppingExecutor struct {
	*fakeExecutor
	stopped int
}

func (s *stoppingExecutor) Stop(ctx context.Context) error {
	s.stopped++
	return nil
}

func TestRouter_Stop(t *testing.T) {
	lw := &stoppingExecutor{fakeExecutor: newFakeExecutor("lw")}

	router := NewRouter(lw, newFakeExecutor("dist"), NewRoutingPolicy(nil, true), setupTestLogger())
	require.NoError(t, router.Stop(context.Background()))
	assert.Equal(t, 1, lw.stopped)

	withoutBroker := NewRouter(lw, nil, NewRoutingPolicy(nil, false), setupTestLogger())
	require.NoError(t, withoutBroker.Stop(context.Background()))
	assert.Equal(t, 2, lw.stopped)
}

func TestRouter_Reload(t *testing.T) {
	ctx := context.Background()
	lw := newFakeExecutor("lw")
	dist := newFakeExecutor("dist")
	router := NewRouter(lw, dist, NewRoutingPolicy(nil, true), setupTestLogger())

	_, err := router.Submit(ctx, Invocation{Name: "evaluate_text"}, SubmitOptions{})
	require.NoError(t, err)
	assert.Len(t, lw.submissions(), 1)

	router.Reload(NewRoutingPolicy([]string{"evaluate_text"}, true))
	assert.Equal(t, []string{"evaluate_text"}, router.Policy().HeavyTasks())

	_, err = router.Submit(ctx, Invocation{Name: "evaluate_text"}, SubmitOptions{})
	require.NoError(t, err)
	assert.Len(t, dist.submissions(), 1)
}

package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type echoPayload struct {
	Msg string `json:"msg" validate:"required"`
}

type echoResult struct {
	Msg string `json:"msg"`
}

func echoTask(ctx context.Context, p echoPayload) (echoResult, error) {
	return echoResult{Msg: p.Msg}, nil
}

func boomTask(ctx context.Context, p echoPayload) (echoResult, error) {
	return echoResult{}, errors.New("bad input")
}

// lightweightHarness wires a lightweight executor to a running worker pool
type lightweightHarness struct {
	executor *LightweightExecutor
	store    *MemoryResultStore
	registry *Registry
	queue    *Queue
	pool     *WorkerPool
}

func newLightweightHarness(t *testing.T, queueSize int, startPool bool) *lightweightHarness {
	t.Helper()

	logger := setupTestLogger()
	store := NewMemoryResultStore()
	registry := NewRegistry(logger)
	Register(registry, "echo", echoTask)
	Register(registry, "boom", boomTask)

	queue := NewQueue(queueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 2}, logger)
	if startPool {
		pool.Start()
	}

	t.Cleanup(func() {
		queue.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	return &lightweightHarness{
		executor: NewLightweightExecutor(store, registry, queue, nil, LightweightConfig{}, logger),
		store:    store,
		registry: registry,
		queue:    queue,
		pool:     pool,
	}
}

// waitForStatus polls get until the record reaches one of the wanted
// statuses and returns the final record.
func waitForStatus(t *testing.T, get func() (*Result, error), want ...Status) *Result {
	t.Helper()

	require.Eventually(t, func() bool {
		r, err := get()
		if err != nil || r == nil {
			return false
		}
		for _, s := range want {
			if r.Status == s {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond, "task never reached %v", want)

	r, err := get()
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func waitForTerminal(t *testing.T, get func() (*Result, error)) *Result {
	t.Helper()
	return waitForStatus(t, get, StatusSuccess, StatusFailure)
}

// fakeExecutor is a hand-written Executor double for router and manager tests
type fakeExecutor struct {
	mu sync.Mutex

	name      string
	submitted []Invocation
	options   []SubmitOptions
	results   map[string]*Result
	cancelled []string

	submitErr    error
	getErr       error
	cancelResult bool
}

func newFakeExecutor(name string) *fakeExecutor {
	return &fakeExecutor{
		name:    name,
		results: make(map[string]*Result),
	}
}

func (f *fakeExecutor) Submit(ctx context.Context, inv Invocation, opts SubmitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, inv)
	f.options = append(f.options, opts)

	id := opts.TaskID
	if id == "" {
		id = f.name + "-task"
	}
	f.results[id] = NewPendingResult(id)
	return id, nil
}

func (f *fakeExecutor) GetResult(ctx context.Context, taskID string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.results[taskID].Clone(), nil
}

func (f *fakeExecutor) Cancel(ctx context.Context, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, taskID)
	return f.cancelResult, nil
}

func (f *fakeExecutor) submissions() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.submitted...)
}

func (f *fakeExecutor) cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

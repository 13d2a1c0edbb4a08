package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lingua-api/internal/task"
	"github.com/phrazzld/lingua-api/internal/testdb"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := testdb.RequireURL(t)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, logger))
	return db
}

// withTestStore runs fn against a store bound to a rolled-back transaction.
func withTestStore(t *testing.T, fn func(t *testing.T, store *ResultStore)) {
	db := setupTestDB(t)
	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		fn(t, NewResultStore(tx, slog.New(slog.NewTextHandler(io.Discard, nil))))
	})
}

func TestResultStore_Integration(t *testing.T) {
	withTestStore(t, testResultStoreLifecycle)
}

func testResultStoreLifecycle(t *testing.T, store *ResultStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	id := "it-" + uuid.NewString()

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	pending := task.NewPendingResult(id)
	require.NoError(t, store.Put(ctx, pending, time.Hour))

	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.StatusPending, got.Status)

	applied, err := store.Transition(ctx, task.StatusRunning, pending.Failed(now, "x"), time.Hour)
	require.NoError(t, err)
	assert.False(t, applied)

	running := pending.Running(now)
	applied, err = store.Transition(ctx, task.StatusPending, running, time.Hour)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.Transition(ctx, task.StatusRunning, running.Succeeded(now, json.RawMessage(`{"n":1}`)), time.Hour)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSuccess, got.Status)
	assert.JSONEq(t, `{"n":1}`, string(got.Result))

	require.NoError(t, store.Delete(ctx, id))
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResultStore_CreateIfAbsent(t *testing.T) {
	withTestStore(t, testResultStoreCreate)
}

func testResultStoreCreate(t *testing.T, store *ResultStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	id := "create-" + uuid.NewString()

	created, err := store.Create(ctx, task.NewPendingResult(id), time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	applied, err := store.Transition(ctx, task.StatusPending, task.NewPendingResult(id).Running(now).Failed(now, "bad input"), time.Minute)
	require.NoError(t, err)
	require.True(t, applied)

	created, err = store.Create(ctx, task.NewPendingResult(id), time.Minute)
	require.NoError(t, err)
	assert.False(t, created, "a live row is never replaced")

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailure, got.Status)

	store.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	created, err = store.Create(ctx, task.NewPendingResult(id), time.Minute)
	require.NoError(t, err)
	assert.True(t, created, "an expired row that was not purged yet is replaced")
}

func TestResultStore_ExpiryAndPurge(t *testing.T) {
	withTestStore(t, testResultStoreExpiry)
}

func testResultStoreExpiry(t *testing.T, store *ResultStore) {
	ctx := context.Background()
	id := "exp-" + uuid.NewString()

	require.NoError(t, store.Put(ctx, task.NewPendingResult(id), time.Minute))

	store.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got, "expired rows are invisible")

	applied, err := store.Transition(ctx, task.StatusPending, task.NewPendingResult(id).Running(time.Now()), time.Minute)
	require.NoError(t, err)
	assert.False(t, applied)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}

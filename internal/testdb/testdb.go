// Package testdb provides helpers for database integration tests. Tests skip
// unless a database URL is present in the environment, and run their
// statements inside a transaction that is rolled back afterwards.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/lingua-api/internal/redact"
)

// urlEnvVars are checked in order for the test database URL.
var urlEnvVars = []string{"DATABASE_URL", "LINGUA_DATABASE_URL"}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range urlEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return DatabaseURL() == ""
}

// RequireURL returns the test database URL, skipping t when there is none.
func RequireURL(t *testing.T) string {
	t.Helper()
	url := DatabaseURL()
	if url == "" {
		t.Skip("Skipping integration test - DATABASE_URL environment variable required")
	}
	return url
}

// WithTx runs fn inside a transaction that is always rolled back, so tests
// never persist their writes.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("database %s unreachable: %s", redact.URL(DatabaseURL()), redact.Error(err))
	}

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Errorf("failed to roll back transaction: %s", redact.Error(err))
		}
	}()

	fn(t, tx)
}

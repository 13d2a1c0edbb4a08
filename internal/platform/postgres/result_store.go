package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/lingua-api/internal/task"
)

// ResultStore implements task.ResultStore using PostgreSQL. Expired rows
// are invisible to reads and removed by PurgeExpired.
type ResultStore struct {
	db     DBTX
	logger *slog.Logger
	now    func() time.Time
}

// Ensure ResultStore implements task.ResultStore and task.Purger
var (
	_ task.ResultStore = (*ResultStore)(nil)
	_ task.Purger      = (*ResultStore)(nil)
)

// NewResultStore creates a new ResultStore
func NewResultStore(db DBTX, logger *slog.Logger) *ResultStore {
	return &ResultStore{
		db:     db,
		logger: logger.With("component", "postgres_result_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Put implements task.ResultStore.
func (s *ResultStore) Put(ctx context.Context, result *task.Result, ttl time.Duration) error {
	record, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		INSERT INTO task_results (task_id, status, record, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status,
			record = EXCLUDED.record,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	now := s.now()
	_, err = s.db.ExecContext(ctx, query,
		result.TaskID,
		string(result.Status),
		record,
		now.Add(ttl),
		now,
	)
	if err != nil {
		s.logger.Error("failed to save task result",
			"task_id", result.TaskID,
			"status", result.Status,
			"error", err)
		return fmt.Errorf("failed to save task result: %w", MapError(err))
	}
	return nil
}

// Create implements task.ResultStore. An expired row that has not been
// purged yet is replaced.
func (s *ResultStore) Create(ctx context.Context, result *task.Result, ttl time.Duration) (bool, error) {
	record, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		INSERT INTO task_results (task_id, status, record, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status,
			record = EXCLUDED.record,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		WHERE task_results.expires_at <= EXCLUDED.updated_at
	`

	now := s.now()
	res, err := s.db.ExecContext(ctx, query,
		result.TaskID,
		string(result.Status),
		record,
		now.Add(ttl),
		now,
	)
	if err != nil {
		s.logger.Error("failed to create task result",
			"task_id", result.TaskID,
			"error", err)
		return false, fmt.Errorf("failed to create task result: %w", MapError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Get implements task.ResultStore.
func (s *ResultStore) Get(ctx context.Context, taskID string) (*task.Result, error) {
	query := `
		SELECT record
		FROM task_results
		WHERE task_id = $1 AND expires_at > $2
	`

	var record []byte
	err := s.db.QueryRowContext(ctx, query, taskID, s.now()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task result: %w", MapError(err))
	}

	var result task.Result
	if err := json.Unmarshal(record, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}
	return &result, nil
}

// Transition implements task.ResultStore with a single conditional UPDATE.
func (s *ResultStore) Transition(ctx context.Context, from task.Status, next *task.Result, ttl time.Duration) (bool, error) {
	record, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		UPDATE task_results
		SET status = $1, record = $2, expires_at = $3, updated_at = $4
		WHERE task_id = $5 AND status = $6 AND expires_at > $4
	`

	now := s.now()
	res, err := s.db.ExecContext(ctx, query,
		string(next.Status),
		record,
		now.Add(ttl),
		now,
		next.TaskID,
		string(from),
	)
	if err != nil {
		s.logger.Error("failed to transition task result",
			"task_id", next.TaskID,
			"from", from,
			"to", next.Status,
			"error", err)
		return false, fmt.Errorf("failed to transition task result: %w", MapError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Delete implements task.ResultStore.
func (s *ResultStore) Delete(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_results WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task result: %w", MapError(err))
	}
	return nil
}

// PurgeExpired implements task.Purger.
func (s *ResultStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_results WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired task results: %w", MapError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/lingua-api/internal/task"
)

// DefaultKeyPrefix namespaces task records in a shared Redis database.
const DefaultKeyPrefix = "lingua:task:"

// maxTransitionAttempts bounds optimistic-lock retries in Transition.
const maxTransitionAttempts = 10

// ErrTransitionContended is returned when a conditional write keeps losing
// to concurrent writers.
var ErrTransitionContended = errors.New("task result transition contended")

// ResultStore implements task.ResultStore on Redis. Each record is a single
// JSON string value with a TTL, so expiry is handled natively.
type ResultStore struct {
	client goredis.UniversalClient
	prefix string
}

// Ensure ResultStore implements task.ResultStore
var _ task.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a store using client. An empty prefix selects
// DefaultKeyPrefix.
func NewResultStore(client goredis.UniversalClient, prefix string) *ResultStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ResultStore{
		client: client,
		prefix: prefix,
	}
}

func (s *ResultStore) key(taskID string) string {
	return s.prefix + taskID
}

// Put implements task.ResultStore.
func (s *ResultStore) Put(ctx context.Context, result *task.Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	if err := s.client.Set(ctx, s.key(result.TaskID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store task result: %w", err)
	}
	return nil
}

// Create implements task.ResultStore with SET NX.
func (s *ResultStore) Create(ctx context.Context, result *task.Result, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(result.TaskID), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create task result: %w", err)
	}
	return created, nil
}

// Get implements task.ResultStore.
func (s *ResultStore) Get(ctx context.Context, taskID string) (*task.Result, error) {
	data, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task result: %w", err)
	}

	var result task.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}
	return &result, nil
}

// Transition implements task.ResultStore using WATCH/MULTI. A write that
// races another writer is retried against the fresh record.
func (s *ResultStore) Transition(ctx context.Context, from task.Status, next *task.Result, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}
	key := s.key(next.TaskID)

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		applied := false
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, goredis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			var stored struct {
				Status task.Status `json:"status"`
			}
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("failed to decode task result: %w", err)
			}
			if stored.Status != from {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to transition task result: %w", err)
		}
		return applied, nil
	}

	return false, fmt.Errorf("%w: %s", ErrTransitionContended, next.TaskID)
}

// Delete implements task.ResultStore.
func (s *ResultStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, s.key(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to delete task result: %w", err)
	}
	return nil
}

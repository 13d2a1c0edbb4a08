package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ResultStore is the shared, expiring key-value storage holding Result
// records for lightweight tasks. Every write replaces the whole record
// atomically; readers never observe a partially updated record.
// Version: 1.0
type ResultStore interface {
	// Put stores result under its task ID, expiring after ttl.
	Put(ctx context.Context, result *Result, ttl time.Duration) error

	// Create stores result only if no live record exists for its task ID.
	// It reports whether the record was written.
	Create(ctx context.Context, result *Result, ttl time.Duration) (bool, error)

	// Get returns the record for taskID, or nil if it never existed or
	// has expired.
	Get(ctx context.Context, taskID string) (*Result, error)

	// Transition replaces the record for next.TaskID only if the stored
	// status equals from. It reports whether the write was applied.
	Transition(ctx context.Context, from Status, next *Result, ttl time.Duration) (bool, error)

	// Delete removes the record for taskID. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, taskID string) error
}

// Purger is implemented by stores that need expired records removed
// explicitly rather than relying on native key expiry.
type Purger interface {
	// PurgeExpired deletes expired records and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// memoryEntry is a serialized record with its expiry deadline.
type memoryEntry struct {
	data      []byte
	status    Status
	expiresAt time.Time
}

// MemoryResultStore is an in-process ResultStore. Records are stored
// serialized so callers never share mutable state with the store.
type MemoryResultStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// Ensure MemoryResultStore implements ResultStore and Purger
var (
	_ ResultStore = (*MemoryResultStore)(nil)
	_ Purger      = (*MemoryResultStore)(nil)
)

// NewMemoryResultStore creates an empty in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put implements ResultStore.
func (s *MemoryResultStore) Put(ctx context.Context, result *Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[result.TaskID] = memoryEntry{
		data:      data,
		status:    result.Status,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Create implements ResultStore.
func (s *MemoryResultStore) Create(ctx context.Context, result *Result, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(result.TaskID); ok {
		return false, nil
	}
	s.entries[result.TaskID] = memoryEntry{
		data:      data,
		status:    result.Status,
		expiresAt: s.now().Add(ttl),
	}
	return true, nil
}

// Get implements ResultStore.
func (s *MemoryResultStore) Get(ctx context.Context, taskID string) (*Result, error) {
	s.mu.Lock()
	entry, ok := s.lookup(taskID)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var result Result
	if err := json.Unmarshal(entry.data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}
	return &result, nil
}

// Transition implements ResultStore.
func (s *MemoryResultStore) Transition(ctx context.Context, from Status, next *Result, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(next.TaskID)
	if !ok || entry.status != from {
		return false, nil
	}
	s.entries[next.TaskID] = memoryEntry{
		data:      data,
		status:    next.Status,
		expiresAt: s.now().Add(ttl),
	}
	return true, nil
}

// Delete implements ResultStore.
func (s *MemoryResultStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, taskID)
	return nil
}

// PurgeExpired implements Purger.
func (s *MemoryResultStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var purged int64
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored records, including expired ones that
// have not been purged yet.
func (s *MemoryResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns the live entry for taskID. Callers must hold s.mu.
func (s *MemoryResultStore) lookup(taskID string) (memoryEntry, bool) {
	entry, ok := s.entries[taskID]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, taskID)
		return memoryEntry{}, false
	}
	return entry, true
}

// RunPurger periodically removes expired records from p until ctx is done.
func RunPurger(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			purged, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Error("failed to purge expired task results", "error", err)
				continue
			}
			if purged > 0 {
				logger.Debug("purged expired task results", "count", purged)
			}
		}
	}
}

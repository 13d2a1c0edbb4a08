package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PeriodicTask is a submission repeated on a cron schedule. Schedule uses
// the standard five-field syntax or descriptors such as "@every 1m".
type PeriodicTask struct {
	Name     string
	Schedule string
	Payload  json.RawMessage
}

// Validate checks the schedule, and the payload against the handler
// registered for Name.
func (p PeriodicTask) Validate(resolver Resolver) error {
	if _, err := cron.ParseStandard(p.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for periodic task %q: %w", p.Schedule, p.Name, err)
	}
	handler, err := resolver.Resolve(p.Name)
	if err != nil {
		return fmt.Errorf("periodic task %q: %w", p.Name, err)
	}
	if err := handler.Validate(p.Payload); err != nil {
		return fmt.Errorf("periodic task %q: %w", p.Name, err)
	}
	return nil
}

// Submitter accepts task submissions. *Manager implements it.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any, opts ...Option) (string, error)
}

// Ensure Manager implements Submitter
var _ Submitter = (*Manager)(nil)

// PeriodicScheduler submits periodic tasks in process. It is used when no
// broker is configured; otherwise the worker schedules them on the broker.
type PeriodicScheduler struct {
	cron   *cron.Cron
	tasks  []PeriodicTask
	logger *slog.Logger
}

// NewPeriodicScheduler creates a scheduler submitting each task through
// submitter on its schedule. Schedules are evaluated in UTC.
func NewPeriodicScheduler(submitter Submitter, tasks []PeriodicTask, logger *slog.Logger) (*PeriodicScheduler, error) {
	logger = logger.With("component", "periodic_scheduler")
	c := cron.New(cron.WithLocation(time.UTC))

	for _, p := range tasks {
		_, err := c.AddFunc(p.Schedule, func() {
			taskID, err := submitter.Submit(context.Background(), p.Name, p.Payload)
			if err != nil {
				logger.Error("failed to submit periodic task", "task_name", p.Name, "error", err)
				return
			}
			logger.Debug("periodic task submitted", "task_name", p.Name, "task_id", taskID)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for periodic task %q: %w", p.Schedule, p.Name, err)
		}
	}

	return &PeriodicScheduler{
		cron:   c,
		tasks:  tasks,
		logger: logger,
	}, nil
}

// Start begins scheduling in the background.
func (s *PeriodicScheduler) Start() {
	s.cron.Start()
	s.logger.Info("periodic scheduler started", "task_count", len(s.tasks))
}

// Stop stops scheduling and waits for in-flight submissions, up to ctx's
// deadline.
func (s *PeriodicScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package distributed

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/lingua-api/internal/task"
)

// NewScheduler creates an asynq scheduler enqueuing each periodic task on
// its configured queue with the executor's retry and retention settings.
// Schedules are evaluated in UTC.
func NewScheduler(opt asynq.RedisConnOpt, execCfg Config, periodic []task.PeriodicTask, logger *slog.Logger) (*asynq.Scheduler, error) {
	cfg := execCfg.withDefaults()
	logger = logger.With("component", "asynq_scheduler")

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Logger:   &slogAsynqLogger{logger: logger},
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("failed to enqueue periodic task", "error", err)
				return
			}
			logger.Debug("periodic task enqueued", "task_id", info.ID, "task_name", info.Type, "queue", info.Queue)
		},
	})

	for _, p := range periodic {
		entryID, err := scheduler.Register(p.Schedule, asynq.NewTask(p.Name, p.Payload), periodicOptions(cfg, p.Name)...)
		if err != nil {
			return nil, fmt.Errorf("failed to register periodic task %q: %w", p.Name, err)
		}
		logger.Info("periodic task registered", "task_name", p.Name, "schedule", p.Schedule, "entry_id", entryID)
	}
	return scheduler, nil
}

// periodicOptions are the enqueue options of one periodic run.
func periodicOptions(cfg Config, name string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(cfg.QueueFor(name)),
		asynq.MaxRetry(cfg.MaxRetries),
		asynq.Retention(cfg.ResultTTL),
	}
}

package distributed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ServerConfig holds configuration for the worker process
type ServerConfig struct {
	// Concurrency is the number of tasks processed in parallel.
	Concurrency int

	// RetryDelay is the fixed delay between attempts of a failing task.
	RetryDelay time.Duration

	// ShutdownTimeout bounds how long running tasks get to finish on stop.
	ShutdownTimeout time.Duration
}

// Backend bundles the broker client and inspector shared by the executor.
type Backend struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// RedisOpt builds the broker connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// Dial opens a broker client and inspector. Connections are made lazily.
func Dial(opt asynq.RedisConnOpt) *Backend {
	return &Backend{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
	}
}

// Close releases broker connections.
func (b *Backend) Close() error {
	return errors.Join(b.Client.Close(), b.Inspector.Close())
}

// NewServer creates an asynq server consuming the queues in cfg.
func NewServer(opt asynq.RedisConnOpt, execCfg Config, cfg ServerConfig, logger *slog.Logger) *asynq.Server {
	queues := make(map[string]int)
	for _, q := range execCfg.withDefaults().Queues() {
		queues[q] = 1
	}

	logger = logger.With("component", "asynq_server")

	return asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          queues,
		RetryDelayFunc:  RetryDelay(cfg.RetryDelay),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          &slogAsynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			taskID, _ := asynq.GetTaskID(ctx)
			logger.Debug("task attempt failed", "task_id", taskID, "task_name", t.Type(), "error", err)
		}),
	})
}

// Run starts srv with handler and blocks until ctx is done, then shuts the
// server down.
func Run(ctx context.Context, srv *asynq.Server, handler asynq.Handler) error {
	if err := srv.Start(handler); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// slogAsynqLogger adapts the asynq logger interface to use slog
type slogAsynqLogger struct {
	logger *slog.Logger
}

func (l *slogAsynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *slogAsynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *slogAsynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *slogAsynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

// Fatal logs at error level. It does NOT exit the process; the worker's
// main decides how to terminate.
func (l *slogAsynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...), "fatal", true)
}

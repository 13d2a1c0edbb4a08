// Package main implements the lingua task worker, which consumes heavy tasks
// from the broker queues and runs them with the same job registry as the
// API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/jobs"
	"github.com/phrazzld/lingua-api/internal/platform/gemini"
	"github.com/phrazzld/lingua-api/internal/platform/logger"
	"github.com/phrazzld/lingua-api/internal/platform/redis"
	"github.com/phrazzld/lingua-api/internal/redact"
	"github.com/phrazzld/lingua-api/internal/task"
	"github.com/phrazzld/lingua-api/internal/task/distributed"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := pflag.String("config", "", "path to a config file (default ./config.yaml if present)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Printf("lingua-worker: %s", redact.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	v := config.NewViper(configFile)
	if err := config.ReadConfigFile(v); err != nil {
		return err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Redis.Addr == "" {
		return errors.New("worker requires redis.addr")
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	registry, cleanup, err := buildRegistry(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer cleanup()

	periodic, err := jobs.PeriodicTasks(registry, cfg.Tasks.Periodic)
	if err != nil {
		return err
	}

	opt := distributed.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	backend := distributed.Dial(opt)
	defer func() {
		if err := backend.Close(); err != nil {
			appLogger.Error("error closing broker connections", "error", err)
		}
	}()

	emitter, metrics, err := newWorkerEmitter(appLogger)
	if err != nil {
		return err
	}
	if cfg.Tasks.WorkerMetricsPort > 0 {
		stopMetrics := serveMetrics(cfg.Tasks.WorkerMetricsPort, newMetricsRouter(metrics), appLogger)
		defer stopMetrics()
	}

	worker := distributed.NewWorker(registry, backend.Inspector, emitter, appLogger)

	execCfg := distributed.ConfigFromTasks(cfg.Tasks)
	if len(periodic) > 0 {
		scheduler, err := distributed.NewScheduler(opt, execCfg, periodic, appLogger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start periodic scheduler: %w", err)
		}
		defer scheduler.Shutdown()
	}

	srv := distributed.NewServer(opt, execCfg, distributed.ServerConfig{
		Concurrency:     cfg.Tasks.WorkerConcurrency,
		RetryDelay:      cfg.Tasks.RetryDelay,
		ShutdownTimeout: shutdownTimeout,
	}, appLogger)

	appLogger.Info("task worker starting",
		"queues", execCfg.Queues(),
		"concurrency", cfg.Tasks.WorkerConcurrency,
		"tasks", registry.Names())

	return distributed.Run(ctx, srv, worker)
}

// buildRegistry registers every job with its collaborators. The returned
// cleanup releases connections opened for them.
func buildRegistry(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*task.Registry, func(), error) {
	registry := task.NewRegistry(appLogger)
	deps := jobs.Dependencies{Logger: appLogger}

	if cfg.LLM.GeminiAPIKey != "" {
		evaluator, err := gemini.NewEvaluator(ctx, cfg.LLM, appLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize text evaluator: %w", err)
		}
		deps.Evaluator = evaluator
	} else {
		appLogger.Warn("no gemini api key configured, text evaluation disabled")
	}

	client, err := redis.Connect(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	deps.Sink = redis.NewNotificationSink(client)
	cleanup := func() {
		if err := client.Close(); err != nil {
			appLogger.Error("error closing redis connection", "error", err)
		}
	}

	jobs.Register(registry, deps)
	return registry, cleanup, nil
}

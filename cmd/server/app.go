package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/events"
	"github.com/phrazzld/lingua-api/internal/jobs"
	"github.com/phrazzld/lingua-api/internal/platform/gemini"
	"github.com/phrazzld/lingua-api/internal/platform/postgres"
	"github.com/phrazzld/lingua-api/internal/platform/redis"
	"github.com/phrazzld/lingua-api/internal/redact"
	"github.com/phrazzld/lingua-api/internal/task"
	"github.com/phrazzld/lingua-api/internal/task/distributed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// application holds the shared dependencies of the server process and
// releases them on shutdown.
type application struct {
	config *config.Config
	viper  *viper.Viper
	logger *slog.Logger

	metrics *prometheus.Registry

	// Connections, nil when not configured
	db      *sql.DB
	redis   *goredis.Client
	backend *distributed.Backend

	store      task.ResultStore
	manager    *task.Manager
	taskRouter *task.Router

	// periodic is nil when there is nothing to schedule or the worker
	// schedules it on the broker
	periodic *task.PeriodicScheduler
}

// newApplication creates an application with every dependency initialized.
// Connections are opened here; the worker pool starts in Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: prometheus.NewRegistry(),
	}
	if err := app.init(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized",
		"executor", cfg.Tasks.Executor,
		"tasks", app.manager.Registry().Names())
	return app, nil
}

// init opens connections and builds the task manager.
func (app *application) init(ctx context.Context) error {
	cfg := app.config
	logger := app.logger

	app.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	emitter := events.NewInMemoryEventEmitter(logger)
	taskMetrics, err := task.NewMetricsHandler(app.metrics)
	if err != nil {
		return err
	}
	emitter.RegisterHandler(taskMetrics)

	if cfg.Redis.Addr != "" {
		app.redis, err = redis.Connect(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		logger.Info("redis connection established", "addr", cfg.Redis.Addr)
	}

	app.store, err = app.setupResultStore(ctx)
	if err != nil {
		return err
	}

	if cfg.DistributedEnabled() {
		app.backend = distributed.Dial(distributed.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
	}

	app.manager, err = task.NewManager(task.ManagerConfig{
		WorkerCount: cfg.Tasks.WorkerCount,
		QueueSize:   cfg.Tasks.QueueSize,
	}, app.executorFactory(), emitter, logger)
	if err != nil {
		return err
	}

	deps, err := app.jobDependencies(ctx)
	if err != nil {
		return err
	}
	jobs.Register(app.manager.Registry(), deps)

	return app.setupPeriodic()
}

// setupPeriodic validates the configured periodic tasks and schedules them
// in process when there is no broker to hold the schedule.
func (app *application) setupPeriodic() error {
	periodic, err := jobs.PeriodicTasks(app.manager.Registry(), app.config.Tasks.Periodic)
	if err != nil {
		return err
	}
	if len(periodic) == 0 {
		return nil
	}
	if app.backend != nil {
		app.logger.Info("periodic tasks are scheduled by the worker", "task_count", len(periodic))
		return nil
	}

	app.periodic, err = task.NewPeriodicScheduler(app.manager, periodic, app.logger)
	return err
}

// setupResultStore builds the lightweight result store selected by config.
func (app *application) setupResultStore(ctx context.Context) (task.ResultStore, error) {
	switch app.config.Tasks.ResultStore {
	case config.ResultStoreMemory:
		return task.NewMemoryResultStore(), nil

	case config.ResultStoreRedis:
		if app.redis == nil {
			return nil, errors.New("redis result store requires redis.addr")
		}
		return redis.NewResultStore(app.redis, redis.DefaultKeyPrefix), nil

	case config.ResultStorePostgres:
		db, err := postgres.Open(ctx, app.config.Database.URL)
		if err != nil {
			return nil, err
		}
		app.db = db
		app.logger.Info("database connection established", "url", redact.URL(app.config.Database.URL))
		if err := postgres.Migrate(ctx, db, app.logger); err != nil {
			return nil, err
		}
		return postgres.NewResultStore(db, app.logger), nil

	default:
		return nil, fmt.Errorf("unknown result store %q", app.config.Tasks.ResultStore)
	}
}

// executorFactory returns the factory the task manager builds its executor
// with, according to the configured executor mode.
func (app *application) executorFactory() task.ExecutorFactory {
	return func(deps task.ExecutorDeps) (task.Executor, error) {
		cfg := app.config

		lightweight := task.NewLightweightExecutor(
			app.store,
			deps.Resolver,
			deps.Scheduler,
			deps.Emitter,
			task.LightweightConfig{ResultTTL: cfg.Tasks.ResultTTL},
			deps.Logger,
		)

		switch cfg.Tasks.Executor {
		case config.ExecutorLightweight:
			return lightweight, nil

		case config.ExecutorDistributed:
			if app.backend == nil {
				return nil, errors.New("distributed executor requires redis.addr")
			}
			return app.distributedExecutor(deps), nil

		case config.ExecutorHybrid:
			var remote task.Executor
			if app.backend != nil {
				remote = app.distributedExecutor(deps)
			}
			app.taskRouter = task.NewRouter(
				lightweight,
				remote,
				task.NewRoutingPolicy(cfg.Tasks.HeavyTasks, cfg.DistributedEnabled()),
				deps.Logger,
			)
			return app.taskRouter, nil

		default:
			return nil, fmt.Errorf("unknown executor mode %q", cfg.Tasks.Executor)
		}
	}
}

func (app *application) distributedExecutor(deps task.ExecutorDeps) *distributed.Executor {
	return distributed.NewExecutor(
		app.backend.Client,
		app.backend.Inspector,
		distributed.ConfigFromTasks(app.config.Tasks),
		deps.Emitter,
		deps.Logger,
	)
}

// jobDependencies wires the optional collaborators of the registered jobs.
func (app *application) jobDependencies(ctx context.Context) (jobs.Dependencies, error) {
	deps := jobs.Dependencies{Logger: app.logger}

	if app.config.LLM.GeminiAPIKey != "" {
		evaluator, err := gemini.NewEvaluator(ctx, app.config.LLM, app.logger)
		if err != nil {
			return deps, fmt.Errorf("failed to initialize text evaluator: %w", err)
		}
		deps.Evaluator = evaluator
	} else {
		app.logger.Warn("no gemini api key configured, text evaluation disabled")
	}

	if app.redis != nil {
		deps.Sink = redis.NewNotificationSink(app.redis)
	}
	return deps, nil
}

// applyConfig updates the parts of the running configuration that can change
// without a restart.
func (app *application) applyConfig(cfg *config.Config) {
	if app.taskRouter == nil {
		return
	}
	app.taskRouter.Reload(task.NewRoutingPolicy(
		cfg.Tasks.HeavyTasks,
		cfg.DistributedEnabled() && app.backend != nil,
	))
}

// Run starts background processing and the HTTP server, and blocks until ctx
// is done.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	app.manager.Start()
	if app.periodic != nil {
		app.periodic.Start()
	}

	if purger, ok := app.store.(task.Purger); ok {
		go task.RunPurger(ctx, purger, app.config.Tasks.PurgeInterval, app.logger.With("component", "result_purger"))
	}

	if app.viper != nil {
		config.Watch(app.viper, app.logger, app.applyConfig)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.periodic != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.periodic.Stop(ctx); err != nil {
			app.logger.Error("error stopping periodic scheduler", "error", err)
		}
		cancel()
	}

	if app.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.manager.Stop(ctx); err != nil {
			app.logger.Error("error stopping task manager", "error", err)
		}
		cancel()
	}

	if app.backend != nil {
		if err := app.backend.Close(); err != nil {
			app.logger.Error("error closing broker connections", "error", err)
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}

// Package main implements the lingua API server: the task status API in
// front of the task manager, with lightweight workers running in process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/platform/logger"
	"github.com/phrazzld/lingua-api/internal/redact"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	configFile := pflag.String("config", "", "path to a config file (default ./config.yaml if present)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Printf("lingua-api: %s", redact.Error(err))
		stop()
		os.Exit(1)
	}
}

// run loads configuration, builds the application and serves until ctx is
// done.
func run(ctx context.Context, configFile string) error {
	v, cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"executor", cfg.Tasks.Executor,
		"result_store", cfg.Tasks.ResultStore,
		"config_file", v.ConfigFileUsed())

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	app.viper = v

	return app.Run(ctx)
}

// loadConfig reads configuration from configFile, if any, and the
// environment.
func loadConfig(configFile string) (*viper.Viper, *config.Config, error) {
	v := config.NewViper(configFile)
	if err := config.ReadConfigFile(v); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return v, cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "LINGUA"

// defaults holds the value of every key that has one.
var defaults = map[string]any{
	"server.port":               8080,
	"server.log_level":          "info",
	"server.allowed_origins":    []string{"*"},
	"redis.db":                  0,
	"llm.model_name":            "gemini-2.0-flash",
	"tasks.executor":            ExecutorHybrid,
	"tasks.result_store":        ResultStoreMemory,
	"tasks.result_ttl":          "1h",
	"tasks.worker_count":        4,
	"tasks.queue_size":          100,
	"tasks.heavy_tasks":         []string{"evaluate_text"},
	"tasks.max_retries":         3,
	"tasks.retry_delay":         "60s",
	"tasks.default_queue":       "default",
	"tasks.task_queues":         map[string]string{},
	"tasks.worker_concurrency":  10,
	"tasks.worker_metrics_port": 9091,
	"tasks.purge_interval":      "5m",
}

// boundKeys have no default but must still be readable from the environment.
var boundKeys = []string{
	"database.url",
	"redis.addr",
	"redis.password",
	"auth.jwt_secret",
	"llm.gemini_api_key",
}

// NewViper returns a viper instance with defaults, environment binding and
// the optional config file search path configured. configFile may be empty.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := NewViper("")
	if err := ReadConfigFile(v); err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// ReadConfigFile reads the configured file into v. A missing file is not an
// error when no explicit path was set.
func ReadConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadFrom unmarshals and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var configValidator = validator.New()

func validate(cfg *Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Tasks.Executor == ExecutorDistributed && cfg.Redis.Addr == "" {
		return errors.New("config validation failed: redis.addr is required for the distributed executor")
	}
	if cfg.Tasks.ResultStore == ResultStoreRedis && cfg.Redis.Addr == "" {
		return errors.New("config validation failed: redis.addr is required for the redis result store")
	}
	if cfg.Tasks.ResultStore == ResultStorePostgres && cfg.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for the postgres result store")
	}
	return nil
}

package config

import "time"

// Executor modes
const (
	ExecutorLightweight = "lightweight"
	ExecutorDistributed = "distributed"
	ExecutorHybrid      = "hybrid"
)

// Result store backends
const (
	ResultStoreMemory   = "memory"
	ResultStoreRedis    = "redis"
	ResultStorePostgres = "postgres"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Tasks    TasksConfig    `mapstructure:"tasks" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel       string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
// The URL is only required when task results are stored in PostgreSQL.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig contains the connection settings shared by the broker and
// the Redis result store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// TasksConfig contains task execution settings.
type TasksConfig struct {
	Executor          string            `mapstructure:"executor" validate:"required,oneof=lightweight distributed hybrid"`
	ResultStore       string            `mapstructure:"result_store" validate:"required,oneof=memory redis postgres"`
	ResultTTL         time.Duration     `mapstructure:"result_ttl" validate:"gt=0"`
	WorkerCount       int               `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize         int               `mapstructure:"queue_size" validate:"gt=0"`
	HeavyTasks        []string          `mapstructure:"heavy_tasks"`
	MaxRetries        int               `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay        time.Duration     `mapstructure:"retry_delay" validate:"gt=0"`
	DefaultQueue      string            `mapstructure:"default_queue" validate:"required"`
	TaskQueues        map[string]string `mapstructure:"task_queues"`
	WorkerConcurrency int               `mapstructure:"worker_concurrency" validate:"gt=0"`
	WorkerMetricsPort int               `mapstructure:"worker_metrics_port" validate:"gte=0,lt=65536"`
	PurgeInterval     time.Duration     `mapstructure:"purge_interval" validate:"gt=0"`

	// Periodic tasks are enqueued on the broker by the worker, or submitted
	// in process when no broker is configured.
	Periodic []PeriodicTaskConfig `mapstructure:"periodic" validate:"dive"`
}

// PeriodicTaskConfig schedules a registered task. Schedule is a five-field
// cron expression or a descriptor such as "@hourly" or "@every 1m".
type PeriodicTaskConfig struct {
	Name     string         `mapstructure:"name" validate:"required"`
	Schedule string         `mapstructure:"schedule" validate:"required"`
	Payload  map[string]any `mapstructure:"payload"`
}

// DistributedEnabled reports whether heavy tasks may be sent to the broker.
// Hybrid mode without a broker address runs everything in process.
func (c *Config) DistributedEnabled() bool {
	if c.Redis.Addr == "" {
		return false
	}
	return c.Tasks.Executor == ExecutorDistributed || c.Tasks.Executor == ExecutorHybrid
}

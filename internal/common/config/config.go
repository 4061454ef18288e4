// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Engine    EngineConfig            `mapstructure:"engine"`
	Transport TransportConfig         `mapstructure:"transport"`
	Listener  ListenerConfig          `mapstructure:"listener"`
	Server    ServerConfig            `mapstructure:"server"`
	Registry  RegistryConfig          `mapstructure:"registry"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	DynamoDB      DynamoDBConfig      `mapstructure:"dynamodb"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Endpoint string `mapstructure:"endpoint"`
}

// --- Engine ---

// Backend names accepted by engine.dedup.backend and engine.ratelimit.backend.
const (
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Audit sink names accepted by engine.audit.sinks.
const (
	SinkPostgres      = "postgres"
	SinkElasticsearch = "elasticsearch"
	SinkMemory        = "memory"
)

type EngineConfig struct {
	Dedup     DedupConfig     `mapstructure:"dedup"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type DedupConfig struct {
	Backend      string        `mapstructure:"backend"`
	Window       time.Duration `mapstructure:"window"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	Stripes      int           `mapstructure:"stripes"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

type RateLimitConfig struct {
	Backend      string                `mapstructure:"backend"`
	KeyPrefix    string                `mapstructure:"key_prefix"`
	Tiers        map[string]TierConfig `mapstructure:"tiers"`
	Stripes      int                   `mapstructure:"stripes"`
	ReapInterval time.Duration         `mapstructure:"reap_interval"`
}

// TierConfig is the budget for one priority tier.
type TierConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
	Exempt bool          `mapstructure:"exempt"`
}

type IdentityConfig struct {
	Precedence []string          `mapstructure:"precedence"`
	Patterns   map[string]string `mapstructure:"patterns"`
}

type DispatchConfig struct {
	// Channels maps a priority to a channel policy (modal, banner, silent).
	Channels map[string]string `mapstructure:"channels"`
	// Senders maps a channel policy to a transport (sns, sqs, ses, log).
	Senders map[string]string `mapstructure:"senders"`
}

type TimeoutsConfig struct {
	Dedup    time.Duration `mapstructure:"dedup"`
	Rate     time.Duration `mapstructure:"rate"`
	Dispatch time.Duration `mapstructure:"dispatch"`
	Audit    time.Duration `mapstructure:"audit"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

type AuditConfig struct {
	Sinks []string `mapstructure:"sinks"`
	Table string   `mapstructure:"table"`
	Index string   `mapstructure:"index"`
}

// --- Transport ---

type TransportConfig struct {
	AWS AWSConfig `mapstructure:"aws"`
}

type AWSConfig struct {
	Region        string  `mapstructure:"region"`
	Endpoint      string  `mapstructure:"endpoint"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	SNS           struct {
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SQS struct {
		QueueURL string `mapstructure:"queue_url"`
	} `mapstructure:"sqs"`
	SES struct {
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
}

// --- Inbound adapters ---

type ListenerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml over it and applies
// environment overrides (engine.dedup.ttl -> ENGINE_DEDUP_TTL).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // the per-environment file is optional

	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// DefaultTiers is the per-priority notification budget used when a tier is not configured.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"low":    {Max: 5, Window: 10 * time.Minute},
		"medium": {Max: 10, Window: 10 * time.Minute},
		"high":   {Max: 10, Window: 10 * time.Minute},
		"urgent": {Max: 30, Window: 10 * time.Minute},
	}
}

// DefaultChannels is the priority to channel policy mapping.
func DefaultChannels() map[string]string {
	return map[string]string{
		"urgent": "modal",
		"high":   "banner",
		"medium": "banner",
		"low":    "silent",
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-engine"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 20
	}
	if cfg.Database.DynamoDB.Table == "" {
		cfg.Database.DynamoDB.Table = "notification_dedup"
	}

	applyEngineDefaults(&cfg.Engine)

	// Transport defaults
	if cfg.Transport.AWS.Region == "" {
		cfg.Transport.AWS.Region = "us-east-1"
	}
	if cfg.Transport.AWS.RatePerSecond == 0 {
		cfg.Transport.AWS.RatePerSecond = 50
	}
	if cfg.Transport.AWS.Burst == 0 {
		cfg.Transport.AWS.Burst = 10
	}

	// Inbound adapters
	if cfg.Listener.Channel == "" {
		cfg.Listener.Channel = "jobs:changes"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBatchSize == 0 {
		cfg.Server.MaxBatchSize = 100
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/activity-registry.json"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.Dedup.Backend == "" {
		e.Dedup.Backend = BackendRedis
	}
	if e.Dedup.Window == 0 {
		e.Dedup.Window = 5 * time.Minute
	}
	if e.Dedup.TTL == 0 {
		e.Dedup.TTL = 2 * e.Dedup.Window
	}
	if e.Dedup.KeyPrefix == "" {
		e.Dedup.KeyPrefix = "notif:dedup:"
	}
	if e.Dedup.Stripes == 0 {
		e.Dedup.Stripes = 64
	}
	if e.Dedup.ReapInterval == 0 {
		e.Dedup.ReapInterval = time.Minute
	}

	if e.RateLimit.Backend == "" {
		e.RateLimit.Backend = BackendRedis
	}
	if e.RateLimit.KeyPrefix == "" {
		e.RateLimit.KeyPrefix = "notif:rate:"
	}
	if e.RateLimit.Stripes == 0 {
		e.RateLimit.Stripes = 64
	}
	if e.RateLimit.ReapInterval == 0 {
		e.RateLimit.ReapInterval = time.Minute
	}
	if e.RateLimit.Tiers == nil {
		e.RateLimit.Tiers = make(map[string]TierConfig)
	}
	for name, tier := range DefaultTiers() {
		if _, ok := e.RateLimit.Tiers[name]; !ok {
			e.RateLimit.Tiers[name] = tier
		}
	}

	if len(e.Identity.Precedence) == 0 {
		e.Identity.Precedence = []string{"account", "staff", "assignment"}
	}

	if e.Dispatch.Channels == nil {
		e.Dispatch.Channels = make(map[string]string)
	}
	for priority, channel := range DefaultChannels() {
		if _, ok := e.Dispatch.Channels[priority]; !ok {
			e.Dispatch.Channels[priority] = channel
		}
	}
	if e.Dispatch.Senders == nil {
		e.Dispatch.Senders = make(map[string]string)
	}
	for _, channel := range e.Dispatch.Channels {
		if _, ok := e.Dispatch.Senders[channel]; !ok {
			e.Dispatch.Senders[channel] = "log"
		}
	}

	if e.Timeouts.Dedup == 0 {
		e.Timeouts.Dedup = 500 * time.Millisecond
	}
	if e.Timeouts.Rate == 0 {
		e.Timeouts.Rate = 500 * time.Millisecond
	}
	if e.Timeouts.Dispatch == 0 {
		e.Timeouts.Dispatch = 5 * time.Second
	}
	if e.Timeouts.Audit == 0 {
		e.Timeouts.Audit = 2 * time.Second
	}

	if e.Breaker.ConsecutiveFailures == 0 {
		e.Breaker.ConsecutiveFailures = 5
	}
	if e.Breaker.OpenTimeout == 0 {
		e.Breaker.OpenTimeout = 10 * time.Second
	}

	if len(e.Audit.Sinks) == 0 {
		e.Audit.Sinks = []string{SinkPostgres}
	}
	if e.Audit.Table == "" {
		e.Audit.Table = "notification_audit"
	}
	if e.Audit.Index == "" {
		e.Audit.Index = "notification-audit"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	e := cfg.Engine
	if e.Dedup.Window <= 0 {
		return fmt.Errorf("engine.dedup.window must be positive")
	}
	if e.Dedup.TTL < e.Dedup.Window {
		return fmt.Errorf("engine.dedup.ttl (%s) must be at least engine.dedup.window (%s)", e.Dedup.TTL, e.Dedup.Window)
	}

	switch e.Dedup.Backend {
	case BackendRedis, BackendMemory:
	case BackendDynamoDB:
		if cfg.Database.DynamoDB.Table == "" {
			return fmt.Errorf("database.dynamodb.table is required for the dynamodb dedup backend")
		}
	default:
		return fmt.Errorf("engine.dedup.backend %q is not supported", e.Dedup.Backend)
	}

	switch e.RateLimit.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("engine.ratelimit.backend %q is not supported", e.RateLimit.Backend)
	}

	if (e.Dedup.Backend == BackendRedis || e.RateLimit.Backend == BackendRedis || cfg.Listener.Enabled) &&
		cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	for name, tier := range e.RateLimit.Tiers {
		if tier.Exempt {
			continue
		}
		if tier.Max <= 0 || tier.Window <= 0 {
			return fmt.Errorf("engine.ratelimit.tiers.%s needs a positive max and window", name)
		}
	}

	for pattern, expr := range e.Identity.Patterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("engine.identity.patterns.%s: %w", pattern, err)
		}
	}

	for channel, sender := range e.Dispatch.Senders {
		switch sender {
		case "log":
		case "sns":
			if cfg.Transport.AWS.SNS.TopicARN == "" {
				return fmt.Errorf("transport.aws.sns.topic_arn is required for channel %s", channel)
			}
		case "sqs":
			if cfg.Transport.AWS.SQS.QueueURL == "" {
				return fmt.Errorf("transport.aws.sqs.queue_url is required for channel %s", channel)
			}
		case "ses":
			if cfg.Transport.AWS.SES.FromEmail == "" {
				return fmt.Errorf("transport.aws.ses.from_email is required for channel %s", channel)
			}
		default:
			return fmt.Errorf("engine.dispatch.senders.%s: unknown sender %q", channel, sender)
		}
	}

	for _, sink := range e.Audit.Sinks {
		switch sink {
		case SinkMemory:
		case SinkPostgres:
			if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
				return fmt.Errorf("database.postgres.host and database are required for the postgres audit sink")
			}
		case SinkElasticsearch:
			if cfg.Database.Elasticsearch.GetURL() == "" {
				return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch audit sink")
			}
		default:
			return fmt.Errorf("engine.audit.sinks: unknown sink %q", sink)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

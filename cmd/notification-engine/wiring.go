// cmd/notification-engine/wiring.go
package main

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"notification-engine/internal/api"
	awsclients "notification-engine/internal/common/aws"
	"notification-engine/internal/common/breaker"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/database"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/engine"
	"notification-engine/internal/engine/audit"
	"notification-engine/internal/engine/dedup"
	"notification-engine/internal/engine/dispatch"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/engine/identity"
	"notification-engine/internal/engine/ratelimit"
	"notification-engine/internal/engine/transport"
)

// clients holds the connections opened for the configured backends. Members are nil when the
// configuration does not use them.
type clients struct {
	redis    *database.RedisClient
	postgres *database.PostgresClient
	es       *database.ElasticsearchClient
	dynamo   *database.DynamoDBClient
	aws      *awssdk.Config
	checks   map[string]api.ReadinessCheck
}

func (c *clients) Close(log *zap.Logger) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Error("Error closing Redis", zap.Error(err))
		}
	}
	if c.postgres != nil {
		if err := c.postgres.Close(); err != nil {
			log.Error("Error closing Postgres", zap.Error(err))
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// connect opens only what the configuration refers to, retrying each store while it comes up.
func connect(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*clients, error) {
	c := &clients{checks: make(map[string]api.ReadinessCheck)}
	e := cfg.Engine
	senders := dispatch.SendersNeeded(e.Dispatch)

	if e.Dedup.Backend == config.BackendRedis || e.RateLimit.Backend == config.BackendRedis || cfg.Listener.Enabled {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		if err := retryWithBackoff(func() error { return rc.Ping(ctx) }, 5, time.Second, zapLog, "Redis connection"); err != nil {
			return nil, err
		}
		c.redis = rc
		c.checks["redis"] = rc.Ping
		zapLog.Info("Redis connected", zap.String("address", cfg.Database.Redis.Address))
	}

	if contains(e.Audit.Sinks, config.SinkPostgres) {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := retryWithBackoff(func() error { return pg.Ping(ctx) }, 5, time.Second, zapLog, "Postgres connection"); err != nil {
			return nil, err
		}
		if err := audit.NewPostgresSink(pg.GetDB(), e.Audit.Table).EnsureSchema(ctx); err != nil {
			return nil, err
		}
		c.postgres = pg
		c.checks["postgres"] = func(ctx context.Context) error { return pg.CheckTable(ctx, e.Audit.Table) }
		zapLog.Info("Postgres connected", zap.String("host", cfg.Database.Postgres.Host))
	}

	if contains(e.Audit.Sinks, config.SinkElasticsearch) {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := retryWithBackoff(func() error { return es.Ping(ctx) }, 5, time.Second, zapLog, "Elasticsearch connection"); err != nil {
			return nil, err
		}
		if err := es.EnsureIndex(ctx, e.Audit.Index, audit.IndexMapping); err != nil {
			return nil, err
		}
		c.es = es
		c.checks["elasticsearch"] = es.Ping
		zapLog.Info("Elasticsearch connected", zap.String("url", cfg.Database.Elasticsearch.GetURL()))
	}

	if e.Dedup.Backend == config.BackendDynamoDB || senders[transport.SenderSNS] || senders[transport.SenderSQS] || senders[transport.SenderSES] {
		awsCfg, err := awsclients.LoadConfig(ctx, cfg.Transport.AWS)
		if err != nil {
			return nil, err
		}
		c.aws = &awsCfg
	}

	if e.Dedup.Backend == config.BackendDynamoDB {
		ddb := database.NewDynamoDB(*c.aws, cfg.Database.DynamoDB)
		if err := retryWithBackoff(func() error { return ddb.Ping(ctx) }, 5, time.Second, zapLog, "DynamoDB table check"); err != nil {
			return nil, err
		}
		c.dynamo = ddb
		c.checks["dynamodb"] = ddb.Ping
	}

	return c, nil
}

func buildDedup(cfg config.EngineConfig, c *clients, log logger.Logger) (dedup.Store, []engine.ScheduledJanitor, error) {
	var store dedup.Store
	switch cfg.Dedup.Backend {
	case config.BackendMemory:
		mem := dedup.NewMemoryStore(cfg.Dedup.Stripes)
		return mem, []engine.ScheduledJanitor{{Name: "dedup", Janitor: mem, Interval: cfg.Dedup.ReapInterval}}, nil
	case config.BackendRedis:
		store = dedup.NewRedisStore(c.redis.GetClient(), dedup.WithKeyPrefix(cfg.Dedup.KeyPrefix))
	case config.BackendDynamoDB:
		store = dedup.NewDynamoDBStore(c.dynamo.Client, c.dynamo.Table)
	default:
		return nil, nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
	return dedup.NewBreakerStore(store, breaker.New("dedup", cfg.Breaker, log)), nil, nil
}

func buildLimiter(cfg config.EngineConfig, c *clients, log logger.Logger) (ratelimit.Limiter, []engine.ScheduledJanitor, error) {
	tiers, err := ratelimit.TiersFromConfig(cfg.RateLimit.Tiers)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.RateLimit.Backend {
	case config.BackendMemory:
		mem := ratelimit.NewMemoryLimiter(tiers, cfg.RateLimit.Stripes)
		return mem, []engine.ScheduledJanitor{{Name: "ratelimit", Janitor: mem, Interval: cfg.RateLimit.ReapInterval}}, nil
	case config.BackendRedis:
		rl := ratelimit.NewRedisLimiter(c.redis.GetClient(), tiers, ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix))
		return ratelimit.NewBreakerLimiter(rl, breaker.New("ratelimit", cfg.Breaker, log)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown ratelimit backend %q", cfg.RateLimit.Backend)
}

func buildDispatcher(cfg *config.Config, c *clients, log logger.Logger) (*dispatch.Dispatcher, error) {
	aws := cfg.Transport.AWS
	needed := dispatch.SendersNeeded(cfg.Engine.Dispatch)

	set := dispatch.SenderSet{Log: transport.NewLogSender(log.Named("transport"))}
	if needed[transport.SenderSNS] {
		set.SNS = transport.NewSNSSender(awsclients.NewSNSClient(*c.aws, aws.Endpoint), aws.SNS.TopicARN,
			transport.NewPacer(aws.RatePerSecond, aws.Burst))
	}
	if needed[transport.SenderSQS] {
		set.SQS = transport.NewSQSSender(awsclients.NewSQSClient(*c.aws, aws.Endpoint), aws.SQS.QueueURL,
			transport.NewPacer(aws.RatePerSecond, aws.Burst))
	}
	if needed[transport.SenderSES] {
		set.SES = transport.NewSESSender(awsclients.NewSESClient(*c.aws, aws.Endpoint), aws.SES.FromEmail,
			transport.NewPacer(aws.RatePerSecond, aws.Burst))
	}

	channels, err := dispatch.ChannelsFromConfig(cfg.Engine.Dispatch.Channels)
	if err != nil {
		return nil, err
	}
	senders, err := dispatch.BindSenders(cfg.Engine.Dispatch, set)
	if err != nil {
		return nil, err
	}
	return dispatch.New(channels, senders, log)
}

func buildEngine(cfg *config.Config, c *clients, log logger.Logger, obs *observability.Observability) (*engine.Engine, error) {
	e := cfg.Engine

	resolver, err := identity.NewResolver(identity.Options{
		Precedence: e.Identity.Precedence,
		Patterns:   e.Identity.Patterns,
	})
	if err != nil {
		return nil, err
	}
	fps, err := fingerprint.NewBuilder(e.Dedup.Window)
	if err != nil {
		return nil, err
	}

	store, dedupJanitors, err := buildDedup(e, c, log)
	if err != nil {
		return nil, err
	}
	limiter, rateJanitors, err := buildLimiter(e, c, log)
	if err != nil {
		return nil, err
	}
	dispatcher, err := buildDispatcher(cfg, c, log)
	if err != nil {
		return nil, err
	}

	auditClients := audit.Clients{}
	if c.postgres != nil {
		auditClients.Postgres = c.postgres.GetDB()
	}
	if c.es != nil {
		auditClients.Elasticsearch = c.es.Client
	}
	sink, err := audit.FromConfig(e.Audit, auditClients, log)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Options{
		Resolver:      resolver,
		Fingerprints:  fps,
		Dedup:         store,
		Limiter:       limiter,
		Dispatcher:    dispatcher,
		Audit:         sink,
		DedupTTL:      e.Dedup.TTL,
		Timeouts:      e.Timeouts,
		Logger:        log,
		Observability: obs,
		Janitors:      append(dedupJanitors, rateJanitors...),
	})
}

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/api"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/database"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/engine"
	"notification-engine/internal/engine/audit"
	"notification-engine/internal/engine/dedup"
	"notification-engine/internal/engine/dispatch"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/engine/identity"
	"notification-engine/internal/engine/ratelimit"
	"notification-engine/internal/engine/transport"
	"notification-engine/internal/models"
	changelistener "notification-engine/internal/workers/notification/change-listener"
)

// These tests need Redis on localhost:6379, Postgres on localhost:5432 and Elasticsearch on
// localhost:9200. Set E2E=1 to run them.
func TestMain(m *testing.M) {
	if os.Getenv("E2E") == "" {
		fmt.Println("E2E not set, skipping end-to-end tests")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type stack struct {
	engine *engine.Engine
	rdb    *redis.Client
	es     *elasticsearch.Client
	index  string
}

func setupStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	cfg := config.Config{}
	cfg.Database.Postgres = config.PostgresConfig{
		Host: "localhost", Port: 5432, Database: "notifications", User: "postgres", Password: "postgres",
		MaxConnections: 5, MaxIdle: 1, SSLMode: "disable",
	}
	cfg.Database.Redis = config.RedisConfig{Address: "localhost:6379"}
	cfg.Database.Elasticsearch = config.ElasticsearchConfig{URL: "http://localhost:9200"}

	// --- Redis ---
	rc, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis client creation failed")
	require.NoError(t, rc.Ping(ctx), "❌ Redis ping failed")
	t.Cleanup(func() { _ = rc.Close() })
	t.Log("✅ Redis connected")

	// --- PostgreSQL ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "❌ PostgreSQL ping failed")
	t.Cleanup(func() { _ = pg.Close() })
	t.Log("✅ PostgreSQL connected")

	// --- Elasticsearch ---
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "❌ Elasticsearch client creation failed")
	require.NoError(t, es.Ping(ctx), "❌ Elasticsearch ping failed")
	t.Log("✅ Elasticsearch connected")

	// Unique names keep runs independent.
	suffix := strings.ToLower(fmt.Sprintf("%d", time.Now().UnixNano()))
	table := "notification_audit_e2e_" + suffix
	index := "notification-audit-e2e-" + suffix

	pgSink := audit.NewPostgresSink(pg.GetDB(), table)
	require.NoError(t, pgSink.EnsureSchema(ctx))
	t.Cleanup(func() { _, _ = pg.GetDB().Exec("DROP TABLE IF EXISTS " + table) })

	sink := audit.NewMirrorSink(pgSink, []audit.Sink{audit.NewElasticsearchSink(es.Client, index)}, log)

	tiers, err := ratelimit.TiersFromConfig(config.DefaultTiers())
	require.NoError(t, err)

	resolver, err := identity.NewResolver(identity.Options{Precedence: []string{"account", "staff", "assignment"}})
	require.NoError(t, err)
	fps, err := fingerprint.NewBuilder(5 * time.Minute)
	require.NoError(t, err)

	channels, err := dispatch.ChannelsFromConfig(config.DefaultChannels())
	require.NoError(t, err)
	logSender := transport.NewLogSender(log)
	dispatcher, err := dispatch.New(channels, map[models.Channel]transport.Sender{
		models.ChannelModal:  logSender,
		models.ChannelBanner: logSender,
		models.ChannelSilent: logSender,
	}, log)
	require.NoError(t, err)

	eng, err := engine.New(engine.Options{
		Resolver:     resolver,
		Fingerprints: fps,
		Dedup:        dedup.NewRedisStore(rc.GetClient(), dedup.WithKeyPrefix("e2e:"+suffix+":dedup:")),
		Limiter:      ratelimit.NewRedisLimiter(rc.GetClient(), tiers, ratelimit.WithKeyPrefix("e2e:"+suffix+":rate:")),
		Dispatcher:   dispatcher,
		Audit:        sink,
		Logger:       log,
	})
	require.NoError(t, err)

	return &stack{engine: eng, rdb: rc.GetClient(), es: es.Client, index: index}
}

func TestFullE2E(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()

	t.Log("🚀 Racing three trigger sources on one event...")

	jobID := fmt.Sprintf("J-%d", time.Now().UnixNano())
	sources := []string{"assignment-flow", "status-update", "listener"}
	results := make([]models.SubmitResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			res, err := s.engine.Submit(ctx, models.NotificationEvent{
				JobID:         jobID,
				RecipientKeys: []string{"u1", "staff:s1"},
				EventType:     models.EventAssigned,
				Priority:      models.PriorityHigh,
				OccurredAt:    time.Now().Add(time.Duration(i) * 100 * time.Millisecond),
				SourceTrigger: src,
			})
			assert.NoError(t, err)
			results[i] = res
		}(i, src)
	}
	wg.Wait()

	delivered := 0
	for _, r := range results {
		if r.Outcome == models.OutcomeDelivered {
			delivered++
		} else {
			assert.Equal(t, models.OutcomeSuppressedDuplicate, r.Outcome)
		}
	}
	assert.Equal(t, 1, delivered, "exactly one trigger must deliver")
	t.Log("✅ Single delivery across triggers")

	fp := fingerprint.Fingerprint(results[0].Fingerprint)
	insp, err := s.engine.Inspect(ctx, fp)
	require.NoError(t, err)
	assert.True(t, insp.Live)
	assert.Len(t, insp.Trail, len(sources))
	t.Log("✅ Postgres audit trail complete")

	res, err := s.es.Get(s.index, results[0].AuditID, s.es.Get.WithContext(ctx))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.False(t, res.IsError(), "audit entry must be mirrored to Elasticsearch")
	t.Log("✅ Elasticsearch mirror written")
}

func TestE2E_ListenerAndAPIConverge(t *testing.T) {
	s := setupStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lcfg := changelistener.LoadConfig(fmt.Sprintf("e2e:changes:%d", time.Now().UnixNano()))
	listener := changelistener.NewListener(lcfg, s.rdb, s.engine, logger.NewTestLogger(t))
	go func() { _ = listener.Run(ctx) }()

	srv := httptest.NewServer(api.NewServer(config.ServerConfig{}, s.engine, nil, logger.NewTestLogger(t)).Routes())
	defer srv.Close()

	jobID := fmt.Sprintf("J-%d", time.Now().UnixNano())
	occurredAt := time.Now().UTC().Truncate(5 * time.Minute).Add(time.Minute)
	body := fmt.Sprintf(`{"jobId":%q,"recipientKeys":["s2"],"eventType":"rescheduled","priority":"medium","occurredAt":%q}`,
		jobID, occurredAt.Format(time.RFC3339Nano))

	resp, err := http.Post(srv.URL+"/v1/notifications", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		n, err := s.rdb.PubSubNumSub(ctx, lcfg.Channel).Result()
		return err == nil && n[lcfg.Channel] == 1
	}, 5*time.Second, 50*time.Millisecond)

	change := fmt.Sprintf(`{"jobId":%q,"recipientKeys":["s2"],"eventType":"rescheduled","priority":"medium","changedAt":%q}`,
		jobID, occurredAt.Add(2*time.Second).Format(time.RFC3339Nano))
	require.NoError(t, s.rdb.Publish(ctx, lcfg.Channel, change).Err())

	fp := s.engine.Fingerprint(jobID, "s2", models.EventRescheduled, occurredAt)
	require.Eventually(t, func() bool {
		insp, err := s.engine.Inspect(ctx, fp)
		return err == nil && len(insp.Trail) == 2
	}, 5*time.Second, 100*time.Millisecond)

	insp, err := s.engine.Inspect(ctx, fp)
	require.NoError(t, err)
	outcomes := map[models.Outcome]int{}
	for _, e := range insp.Trail {
		outcomes[e.Outcome]++
	}
	assert.Equal(t, 1, outcomes[models.OutcomeDelivered])
	assert.Equal(t, 1, outcomes[models.OutcomeSuppressedDuplicate])
	t.Log("✅ Listener duplicate suppressed")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesEngineDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: notification-engine
database:
  redis:
    address: localhost:6379
engine:
  audit:
    sinks: [memory]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Engine.Dedup.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Dedup.Window)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Dedup.TTL)
	assert.Equal(t, []string{"account", "staff", "assignment"}, cfg.Engine.Identity.Precedence)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.Timeouts.Dedup)
	assert.Equal(t, 5*time.Second, cfg.Engine.Timeouts.Dispatch)
	assert.Equal(t, uint32(5), cfg.Engine.Breaker.ConsecutiveFailures)

	require.Contains(t, cfg.Engine.RateLimit.Tiers, "low")
	assert.Equal(t, 5, cfg.Engine.RateLimit.Tiers["low"].Max)
	assert.Equal(t, 30, cfg.Engine.RateLimit.Tiers["urgent"].Max)

	assert.Equal(t, "modal", cfg.Engine.Dispatch.Channels["urgent"])
	assert.Equal(t, "silent", cfg.Engine.Dispatch.Channels["low"])
	assert.Equal(t, "log", cfg.Engine.Dispatch.Senders["banner"])
}

func TestLoadFromFile_ParsesDurationsAndTiers(t *testing.T) {
	path := writeConfig(t, `
engine:
  dedup:
    backend: memory
    window: 2m
    ttl: 3m
  ratelimit:
    backend: memory
    tiers:
      urgent:
        exempt: true
      low:
        max: 2
        window: 1m
  audit:
    sinks: [memory]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Engine.Dedup.Window)
	assert.Equal(t, 3*time.Minute, cfg.Engine.Dedup.TTL)
	assert.True(t, cfg.Engine.RateLimit.Tiers["urgent"].Exempt)
	assert.Equal(t, 2, cfg.Engine.RateLimit.Tiers["low"].Max)
	assert.Equal(t, time.Minute, cfg.Engine.RateLimit.Tiers["low"].Window)
	assert.Equal(t, 10, cfg.Engine.RateLimit.Tiers["medium"].Max)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")
	path := writeConfig(t, `
database:
  redis:
    address: ${TEST_REDIS_ADDR}
engine:
  audit:
    sinks: [memory]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Database.Redis.Address)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "ttl shorter than window",
			body: `
engine:
  dedup: {backend: memory, window: 5m, ttl: 1m}
  ratelimit: {backend: memory}
  audit: {sinks: [memory]}
`,
			wantErr: "engine.dedup.ttl",
		},
		{
			name: "redis backend without address",
			body: `
engine:
  audit: {sinks: [memory]}
`,
			wantErr: "database.redis.address",
		},
		{
			name: "unknown sender",
			body: `
engine:
  dedup: {backend: memory}
  ratelimit: {backend: memory}
  dispatch:
    senders: {modal: pigeon}
  audit: {sinks: [memory]}
`,
			wantErr: "unknown sender",
		},
		{
			name: "sns sender without topic",
			body: `
engine:
  dedup: {backend: memory}
  ratelimit: {backend: memory}
  dispatch:
    senders: {modal: sns}
  audit: {sinks: [memory]}
`,
			wantErr: "topic_arn",
		},
		{
			name: "postgres sink without host",
			body: `
engine:
  dedup: {backend: memory}
  ratelimit: {backend: memory}
`,
			wantErr: "postgres",
		},
		{
			name: "bad identity pattern",
			body: `
engine:
  dedup: {backend: memory}
  ratelimit: {backend: memory}
  identity:
    patterns: {staff: "("}
  audit: {sinks: [memory]}
`,
			wantErr: "engine.identity.patterns.staff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"submit-notification": {Enabled: false, MaxJobsActive: 3},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "submit-notification"))
	assert.True(t, IsWorkerEnabled(cfg, "other"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "other").MaxJobsActive)
	assert.Equal(t, 3, GetWorkerConfig(cfg, "submit-notification").MaxJobsActive)
}

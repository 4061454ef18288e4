// Package audit is the append-only trail of what was delivered, suppressed, or failed, and why.
package audit

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/oklog/ulid/v2"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// Sink appends entries. Entries are never updated or deleted.
type Sink interface {
	Name() string
	Append(ctx context.Context, entry models.AuditEntry) error
}

// Reader is implemented by sinks that can answer "what happened to this fingerprint".
type Reader interface {
	ByFingerprint(ctx context.Context, fingerprint string) ([]models.AuditEntry, error)
}

// NewID returns a ULID whose time component is ts, so ids sort with the trail.
func NewID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String()
}

// Clients carries the connections FromConfig may bind sinks to.
type Clients struct {
	Postgres      *sql.DB
	Elasticsearch *elasticsearch.Client
}

// FromConfig builds the sink chain named by engine.audit.sinks. The first sink is authoritative;
// the rest are best-effort mirrors.
func FromConfig(cfg config.AuditConfig, clients Clients, log logger.Logger) (Sink, error) {
	if len(cfg.Sinks) == 0 {
		return nil, fmt.Errorf("audit: no sinks configured")
	}

	sinks := make([]Sink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkPostgres:
			if clients.Postgres == nil {
				return nil, fmt.Errorf("audit: postgres sink needs a database connection")
			}
			sinks = append(sinks, NewPostgresSink(clients.Postgres, cfg.Table))
		case config.SinkElasticsearch:
			if clients.Elasticsearch == nil {
				return nil, fmt.Errorf("audit: elasticsearch sink needs a client")
			}
			sinks = append(sinks, NewElasticsearchSink(clients.Elasticsearch, cfg.Index))
		case config.SinkMemory:
			sinks = append(sinks, NewMemorySink())
		default:
			return nil, fmt.Errorf("audit: unknown sink %q", name)
		}
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMirrorSink(sinks[0], sinks[1:], log), nil
}

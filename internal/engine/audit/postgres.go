package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"notification-engine/internal/models"
)

// PostgresSink is the authoritative audit log.
type PostgresSink struct {
	db    *sql.DB
	table string
}

var (
	_ Sink   = (*PostgresSink)(nil)
	_ Reader = (*PostgresSink)(nil)
)

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	if table == "" {
		table = "notification_audit"
	}
	return &PostgresSink{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the audit table and its lookup index if they do not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id             TEXT PRIMARY KEY,
	fingerprint    TEXT NOT NULL,
	recipient_id   TEXT NOT NULL,
	job_id         TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	priority       TEXT NOT NULL DEFAULT '',
	source_trigger TEXT NOT NULL DEFAULT '',
	channel        TEXT NOT NULL DEFAULT '',
	delivery_id    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("audit: create table: %w", err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (fingerprint)`,
		pq.QuoteIdentifier(trimQuotes(s.table)+"_fingerprint_idx"), s.table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("audit: create index: %w", err)
	}
	return nil
}

func (s *PostgresSink) Append(ctx context.Context, e models.AuditEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s
	(id, fingerprint, recipient_id, job_id, event_type, outcome, reason, priority, source_trigger, channel, delivery_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Fingerprint, e.RecipientID, e.JobID, string(e.EventType), string(e.Outcome), e.Reason,
		string(e.Priority), e.SourceTrigger, string(e.Channel), e.DeliveryID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresSink) ByFingerprint(ctx context.Context, fingerprint string) ([]models.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT id, fingerprint, recipient_id, job_id, event_type, outcome, reason,
	priority, source_trigger, channel, delivery_id, created_at
	FROM %s WHERE fingerprint = $1 ORDER BY id`, s.table)

	rows, err := s.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e                                   models.AuditEntry
			eventType, outcome, priority, chann string
		)
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.RecipientID, &e.JobID, &eventType, &outcome, &e.Reason,
			&priority, &e.SourceTrigger, &chann, &e.DeliveryID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.EventType = models.EventType(eventType)
		e.Outcome = models.Outcome(outcome)
		e.Priority = models.Priority(priority)
		e.Channel = models.Channel(chann)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

func trimQuotes(quoted string) string {
	if len(quoted) >= 2 && quoted[0] == '"' && quoted[len(quoted)-1] == '"' {
		return quoted[1 : len(quoted)-1]
	}
	return quoted
}

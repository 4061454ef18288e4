// Package dedup implements the atomic check-and-mark store that guarantees a single admission per
// fingerprint within its TTL, across every process sharing the backend.
package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// Status is the answer to TryAdmit.
type Status string

const (
	Admitted    Status = "admitted"
	AlreadySeen Status = "already_seen"
)

// Decision carries the live record: the new one when admitted, the blocking one when already seen
// (when the backend can report it).
type Decision struct {
	Status Status
	Record models.DedupRecord
}

func (d Decision) Admitted() bool { return d.Status == Admitted }

// Store is implemented by every dedup backend. All errors are fatal for the event: callers must fail
// closed and never treat an error as "not seen".
type Store interface {
	// TryAdmit atomically admits fp for ttl unless a live record exists. On error the Decision still
	// carries the record that was attempted: the write may have landed with its reply lost, and
	// Release of that record is the only way to undo it.
	TryAdmit(ctx context.Context, fp fingerprint.Fingerprint, ttl time.Duration) (Decision, error)
	// Release removes rec only if it is still the live record for its fingerprint.
	Release(ctx context.Context, rec models.DedupRecord) error
	// Lookup returns the live record for fp, if any.
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (models.DedupRecord, bool, error)
}

type options struct {
	clock     clock.Clock
	newToken  func() string
	keyPrefix string
}

// Option configures a backend.
type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTokenFunc overrides how ownership tokens are generated.
func WithTokenFunc(fn func() string) Option {
	return func(o *options) { o.newToken = fn }
}

func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:     clock.Real{},
		newToken:  func() string { return uuid.NewString() },
		keyPrefix: "notif:dedup:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRecord(o options, fp fingerprint.Fingerprint, ttl time.Duration) models.DedupRecord {
	now := o.clock.Now()
	return models.DedupRecord{
		Fingerprint: fp.String(),
		Token:       o.newToken(),
		FirstSeenAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Package ratelimit enforces a sliding-window notification budget per (recipient, priority tier).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/config"
	"notification-engine/internal/models"
)

type Status string

const (
	Allowed   Status = "allowed"
	Throttled Status = "throttled"
)

// Decision is the limiter's answer. Throttled is an outcome, not an error.
type Decision struct {
	Status Status
	Bucket models.RateBucket
	// Exempt is set when the tier bypasses the budget entirely.
	Exempt bool
}

func (d Decision) Allowed() bool { return d.Status == Allowed }

// Tier is the budget for one priority.
type Tier struct {
	Max    int
	Window time.Duration
	Exempt bool
}

type Tiers map[models.Priority]Tier

// TiersFromConfig converts engine.ratelimit.tiers, requiring a tier for every priority.
func TiersFromConfig(cfg map[string]config.TierConfig) (Tiers, error) {
	tiers := make(Tiers, len(cfg))
	for _, p := range models.Priorities() {
		tc, ok := cfg[string(p)]
		if !ok {
			return nil, fmt.Errorf("ratelimit: no tier configured for priority %q", p)
		}
		t := Tier{Max: tc.Max, Window: tc.Window, Exempt: tc.Exempt}
		if !t.Exempt && (t.Max <= 0 || t.Window <= 0) {
			return nil, fmt.Errorf("ratelimit: tier %q needs a positive max and window", p)
		}
		tiers[p] = t
	}
	return tiers, nil
}

func (t Tiers) lookup(p models.Priority) (Tier, error) {
	tier, ok := t[p]
	if !ok {
		return Tier{}, fmt.Errorf("ratelimit: unknown priority %q", p)
	}
	return tier, nil
}

// Limiter is implemented by every backend.
type Limiter interface {
	// TryConsume records one notification against the recipient's tier if budget remains.
	// member identifies the notification in the log. Consuming a member that is still in the window
	// is allowed and not counted again, so a retry after a lost reply spends the budget once. An
	// empty member is always counted.
	TryConsume(ctx context.Context, recipientID string, priority models.Priority, member string) (Decision, error)
	// Peek reports current usage without consuming.
	Peek(ctx context.Context, recipientID string, priority models.Priority) (models.RateBucket, error)
}

type options struct {
	clock     clock.Clock
	keyPrefix string
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real{}, keyPrefix: "notif:rate:"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func exemptDecision(recipientID string, p models.Priority, now time.Time) Decision {
	return Decision{
		Status: Allowed,
		Exempt: true,
		Bucket: models.RateBucket{RecipientID: recipientID, Tier: p, WindowStart: now},
	}
}

func bucketKey(recipientID string, p models.Priority) string {
	return string(p) + ":" + recipientID
}

func ensureMember(member string) string {
	if member == "" {
		return uuid.NewString()
	}
	return member
}

package ratelimit

import (
	"context"

	"notification-engine/internal/common/breaker"
	"notification-engine/internal/models"
)

// BreakerLimiter short-circuits calls to a limiter backend that keeps failing.
type BreakerLimiter struct {
	next Limiter
	cb   *breaker.Breaker
}

var _ Limiter = (*BreakerLimiter)(nil)

func NewBreakerLimiter(next Limiter, cb *breaker.Breaker) *BreakerLimiter {
	return &BreakerLimiter{next: next, cb: cb}
}

func (l *BreakerLimiter) TryConsume(ctx context.Context, recipientID string, priority models.Priority, member string) (Decision, error) {
	return breaker.Do(l.cb, func() (Decision, error) {
		return l.next.TryConsume(ctx, recipientID, priority, member)
	})
}

func (l *BreakerLimiter) Peek(ctx context.Context, recipientID string, priority models.Priority) (models.RateBucket, error) {
	return l.next.Peek(ctx, recipientID, priority)
}

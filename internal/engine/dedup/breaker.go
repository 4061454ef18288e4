package dedup

import (
	"context"
	"time"

	"notification-engine/internal/common/breaker"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// BreakerStore short-circuits calls to a store that keeps failing.
type BreakerStore struct {
	next Store
	cb   *breaker.Breaker
}

var _ Store = (*BreakerStore)(nil)

func NewBreakerStore(next Store, cb *breaker.Breaker) *BreakerStore {
	return &BreakerStore{next: next, cb: cb}
}

func (s *BreakerStore) TryAdmit(ctx context.Context, fp fingerprint.Fingerprint, ttl time.Duration) (Decision, error) {
	return breaker.Do(s.cb, func() (Decision, error) {
		return s.next.TryAdmit(ctx, fp, ttl)
	})
}

func (s *BreakerStore) Release(ctx context.Context, rec models.DedupRecord) error {
	_, err := breaker.Do(s.cb, func() (struct{}, error) {
		return struct{}{}, s.next.Release(ctx, rec)
	})
	return err
}

// Lookup bypasses the breaker; it is diagnostic only.
func (s *BreakerStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (models.DedupRecord, bool, error) {
	return s.next.Lookup(ctx, fp)
}

package audit

import (
	"context"
	"sync"

	"notification-engine/internal/models"
)

// MemorySink keeps entries in process. Used in tests and single-node development.
type MemorySink struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

var (
	_ Sink   = (*MemorySink)(nil)
	_ Reader = (*MemorySink)(nil)
)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Append(ctx context.Context, e models.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// Entries returns a copy of everything appended so far, in append order.
func (s *MemorySink) Entries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemorySink) ByFingerprint(ctx context.Context, fingerprint string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, e := range s.entries {
		if e.Fingerprint == fingerprint {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountByOutcome tallies entries per outcome.
func (s *MemorySink) CountByOutcome() map[models.Outcome]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Outcome]int)
	for _, e := range s.entries {
		counts[e.Outcome]++
	}
	return counts
}

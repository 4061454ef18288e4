package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"notification-engine/internal/models"
)

type logEntry struct {
	at     time.Time
	member string
}

type logShard struct {
	mu   sync.Mutex
	logs map[string][]logEntry
}

// MemoryLimiter keeps one sliding log per key, spread across lock stripes.
type MemoryLimiter struct {
	shards []*logShard
	tiers  Tiers
	opts   options
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(tiers Tiers, stripes int, opts ...Option) *MemoryLimiter {
	if stripes <= 0 {
		stripes = 64
	}
	l := &MemoryLimiter{shards: make([]*logShard, stripes), tiers: tiers, opts: buildOptions(opts)}
	for i := range l.shards {
		l.shards[i] = &logShard{logs: make(map[string][]logEntry)}
	}
	return l
}

func (l *MemoryLimiter) shardFor(key string) *logShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// prune drops entries at or before cutoff. Entries are appended in clock order.
func prune(entries []logEntry, cutoff time.Time) []logEntry {
	i := 0
	for i < len(entries) && !entries[i].at.After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0], entries[i:]...)
}

func (l *MemoryLimiter) TryConsume(ctx context.Context, recipientID string, priority models.Priority, member string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	tier, err := l.tiers.lookup(priority)
	if err != nil {
		return Decision{}, err
	}
	now := l.opts.clock.Now()
	if tier.Exempt {
		return exemptDecision(recipientID, priority, now), nil
	}

	key := bucketKey(recipientID, priority)
	sh := l.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entries := prune(sh.logs[key], now.Add(-tier.Window))
	d := Decision{
		Status: Throttled,
		Bucket: models.RateBucket{
			RecipientID: recipientID,
			Tier:        priority,
			WindowStart: now.Add(-tier.Window),
			Window:      tier.Window,
			Max:         tier.Max,
		},
	}
	switch {
	case member != "" && containsMember(entries, member):
		d.Status = Allowed
	case len(entries) < tier.Max:
		entries = append(entries, logEntry{at: now, member: member})
		d.Status = Allowed
	}
	d.Bucket.Count = len(entries)

	if len(entries) == 0 {
		delete(sh.logs, key)
	} else {
		sh.logs[key] = entries
	}
	return d, nil
}

func containsMember(entries []logEntry, member string) bool {
	for _, e := range entries {
		if e.member == member {
			return true
		}
	}
	return false
}

func (l *MemoryLimiter) Peek(ctx context.Context, recipientID string, priority models.Priority) (models.RateBucket, error) {
	if err := ctx.Err(); err != nil {
		return models.RateBucket{}, err
	}
	tier, err := l.tiers.lookup(priority)
	if err != nil {
		return models.RateBucket{}, err
	}
	now := l.opts.clock.Now()
	bucket := models.RateBucket{
		RecipientID: recipientID,
		Tier:        priority,
		WindowStart: now.Add(-tier.Window),
		Window:      tier.Window,
		Max:         tier.Max,
	}
	if tier.Exempt {
		return bucket, nil
	}

	key := bucketKey(recipientID, priority)
	sh := l.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-tier.Window)
	for _, e := range sh.logs[key] {
		if e.at.After(cutoff) {
			bucket.Count++
		}
	}
	return bucket, nil
}

// Evict drops logs whose newest entry has left every tier window. Returns keys removed.
func (l *MemoryLimiter) Evict() int {
	var longest time.Duration
	for _, t := range l.tiers {
		if t.Window > longest {
			longest = t.Window
		}
	}
	cutoff := l.opts.clock.Now().Add(-longest)

	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for key, entries := range sh.logs {
			if len(entries) == 0 || !entries[len(entries)-1].at.After(cutoff) {
				delete(sh.logs, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len is the number of live buckets.
func (l *MemoryLimiter) Len() int {
	n := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += len(sh.logs)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor runs Evict every interval until ctx is done.
func (l *MemoryLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Evict()
			}
		}
	}()
}

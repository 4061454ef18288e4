package dedup

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

type shard struct {
	mu      sync.Mutex
	records map[string]models.DedupRecord
}

// MemoryStore is a single-process backend. Keys are spread over lock stripes so unrelated
// fingerprints never contend on one mutex.
type MemoryStore struct {
	shards []*shard
	opts   options
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(stripes int, opts ...Option) *MemoryStore {
	if stripes <= 0 {
		stripes = 64
	}
	s := &MemoryStore{shards: make([]*shard, stripes), opts: buildOptions(opts)}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]models.DedupRecord)}
	}
	return s
}

func (s *MemoryStore) shardFor(fp string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) TryAdmit(ctx context.Context, fp fingerprint.Fingerprint, ttl time.Duration) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if ttl <= 0 {
		return Decision{}, fmt.Errorf("dedup: ttl must be positive")
	}

	sh := s.shardFor(fp.String())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.opts.clock.Now()
	if existing, ok := sh.records[fp.String()]; ok && existing.Live(now) {
		return Decision{Status: AlreadySeen, Record: existing}, nil
	}

	rec := newRecord(s.opts, fp, ttl)
	sh.records[fp.String()] = rec
	return Decision{Status: Admitted, Record: rec}, nil
}

func (s *MemoryStore) Release(ctx context.Context, rec models.DedupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shardFor(rec.Fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.records[rec.Fingerprint]; ok && existing.Token == rec.Token {
		delete(sh.records, rec.Fingerprint)
	}
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (models.DedupRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.DedupRecord{}, false, err
	}

	sh := s.shardFor(fp.String())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[fp.String()]
	if !ok || !rec.Live(s.opts.clock.Now()) {
		return models.DedupRecord{}, false, nil
	}
	return rec, true, nil
}

// Cleanup evicts expired records and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	now := s.opts.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for fp, rec := range sh.records {
			if !rec.Live(now) {
				delete(sh.records, fp)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len counts stored records, live or not yet reaped.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
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
				s.Cleanup()
			}
		}
	}()
}

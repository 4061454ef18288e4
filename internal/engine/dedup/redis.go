package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// releaseScript deletes the key only while it still holds the caller's value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore admits with a single SET NX PX, so concurrent callers in any process race on one
// atomic command and exactly one wins.
type RedisStore struct {
	rdb  redis.Cmdable
	opts options
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.Cmdable, opts ...Option) *RedisStore {
	return &RedisStore{rdb: rdb, opts: buildOptions(opts)}
}

func (s *RedisStore) key(fp string) string {
	return s.opts.keyPrefix + fp
}

// value is "<token>|<firstSeenAt unix ms>".
func encodeValue(rec models.DedupRecord) string {
	return rec.Token + "|" + strconv.FormatInt(rec.FirstSeenAt.UnixMilli(), 10)
}

func decodeValue(fp, v string) (models.DedupRecord, error) {
	token, ms, ok := strings.Cut(v, "|")
	if !ok {
		return models.DedupRecord{}, fmt.Errorf("malformed dedup value for %s", fp)
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return models.DedupRecord{}, fmt.Errorf("malformed dedup timestamp for %s: %w", fp, err)
	}
	return models.DedupRecord{
		Fingerprint: fp,
		Token:       token,
		FirstSeenAt: time.UnixMilli(millis).UTC(),
	}, nil
}

func (s *RedisStore) TryAdmit(ctx context.Context, fp fingerprint.Fingerprint, ttl time.Duration) (Decision, error) {
	if ttl <= 0 {
		return Decision{}, fmt.Errorf("dedup: ttl must be positive")
	}

	rec := newRecord(s.opts, fp, ttl)
	ok, err := s.rdb.SetNX(ctx, s.key(fp.String()), encodeValue(rec), ttl).Result()
	if err != nil {
		return Decision{Record: rec}, fmt.Errorf("redis dedup admit: %w", err)
	}
	if ok {
		return Decision{Status: Admitted, Record: rec}, nil
	}

	return Decision{Status: AlreadySeen, Record: models.DedupRecord{Fingerprint: fp.String()}}, nil
}

func (s *RedisStore) Release(ctx context.Context, rec models.DedupRecord) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(rec.Fingerprint)}, encodeValue(rec)).Err(); err != nil {
		return fmt.Errorf("redis dedup release: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (models.DedupRecord, bool, error) {
	key := s.key(fp.String())

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return models.DedupRecord{}, false, nil
	}
	if err != nil {
		return models.DedupRecord{}, false, fmt.Errorf("redis dedup lookup: %w", err)
	}

	rec, err := decodeValue(fp.String(), v)
	if err != nil {
		return models.DedupRecord{}, false, err
	}

	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return models.DedupRecord{}, false, fmt.Errorf("redis dedup lookup ttl: %w", err)
	}
	if ttl < 0 {
		// -2: expired between GET and PTTL.
		return models.DedupRecord{}, false, nil
	}
	rec.ExpiresAt = s.opts.clock.Now().Add(ttl)

	return rec, true, nil
}

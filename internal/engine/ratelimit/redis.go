package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"notification-engine/internal/models"
)

// consumeScript trims the log to the window, then adds member only if the budget allows. A member
// already in the window is allowed without counting again. Runs atomically on the server, so
// concurrent consumers in any process see one count.
//
// KEYS[1] log key; ARGV: now_ms, window_ms, max, member
var consumeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if redis.call("ZSCORE", KEYS[1], ARGV[4]) then
	return {1, count}
end
if count < tonumber(ARGV[3]) then
	redis.call("ZADD", KEYS[1], now, ARGV[4])
	redis.call("PEXPIRE", KEYS[1], window)
	return {1, count + 1}
end
return {0, count}
`)

type RedisLimiter struct {
	rdb   redis.Cmdable
	tiers Tiers
	opts  options
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(rdb redis.Cmdable, tiers Tiers, opts ...Option) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, tiers: tiers, opts: buildOptions(opts)}
}

func (l *RedisLimiter) key(recipientID string, p models.Priority) string {
	return l.opts.keyPrefix + bucketKey(recipientID, p)
}

func (l *RedisLimiter) TryConsume(ctx context.Context, recipientID string, priority models.Priority, member string) (Decision, error) {
	tier, err := l.tiers.lookup(priority)
	if err != nil {
		return Decision{}, err
	}
	now := l.opts.clock.Now()
	if tier.Exempt {
		return exemptDecision(recipientID, priority, now), nil
	}

	res, err := consumeScript.Run(ctx, l.rdb,
		[]string{l.key(recipientID, priority)},
		now.UnixMilli(), tier.Window.Milliseconds(), tier.Max, ensureMember(member),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate consume: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate consume: unexpected reply %v", res)
	}

	d := Decision{
		Status: Throttled,
		Bucket: models.RateBucket{
			RecipientID: recipientID,
			Tier:        priority,
			WindowStart: now.Add(-tier.Window),
			Window:      tier.Window,
			Count:       int(res[1]),
			Max:         tier.Max,
		},
	}
	if res[0] == 1 {
		d.Status = Allowed
	}
	return d, nil
}

func (l *RedisLimiter) Peek(ctx context.Context, recipientID string, priority models.Priority) (models.RateBucket, error) {
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

	count, err := l.rdb.ZCount(ctx, l.key(recipientID, priority),
		"("+strconv.FormatInt(now.Add(-tier.Window).UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return models.RateBucket{}, fmt.Errorf("redis rate peek: %w", err)
	}
	bucket.Count = int(count)
	return bucket, nil
}

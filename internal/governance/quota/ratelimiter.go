package quota

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "awaybot:quota:minute:"
	window             = time.Minute
	keyTTL             = 90 * time.Second
)

// slidingWindow trims the window, then records the message only if the
// window still has room. It returns 1 when the message was recorded.
var slidingWindow = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

// RateLimiter counts messages per user in a one-minute sliding window kept
// as a Redis sorted set scored by arrival time in milliseconds.
type RateLimiter struct {
	rdb redis.Cmdable
	now func() time.Time
	seq atomic.Uint64
}

func NewRateLimiter(rdb redis.Cmdable) *RateLimiter {
	return &RateLimiter{rdb: rdb, now: time.Now}
}

// Allow records one message for userID and reports whether it fits within
// limit messages per minute. Denied messages are not recorded.
func (rl *RateLimiter) Allow(ctx context.Context, userID string, limit int) (bool, error) {
	now := rl.now()
	member := strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatUint(rl.seq.Add(1), 36)

	recorded, err := slidingWindow.Run(ctx, rl.rdb, []string{rateLimitKeyPrefix + userID},
		now.UnixMilli(),
		now.Add(-window).UnixMilli(),
		limit,
		member,
		keyTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window for %s: %w", userID, err)
	}
	return recorded == 1, nil
}

// Usage returns how many messages userID sent in the last minute.
func (rl *RateLimiter) Usage(ctx context.Context, userID string) (int, error) {
	now := rl.now()
	n, err := rl.rdb.ZCount(ctx, rateLimitKeyPrefix+userID,
		strconv.FormatInt(now.Add(-window).UnixMilli()+1, 10),
		strconv.FormatInt(now.UnixMilli(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("counting window for %s: %w", userID, err)
	}
	return int(n), nil
}

func (rl *RateLimiter) Reset(ctx context.Context, userID string) error {
	if err := rl.rdb.Del(ctx, rateLimitKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("resetting window for %s: %w", userID, err)
	}
	return nil
}

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "awaybot:ratelimit:http:"

// RateLimiter throttles the management API per client IP with a sliding
// window kept in a Redis sorted set.
type RateLimiter struct {
	client  redis.Cmdable
	maxReqs int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter allows maxReqs requests per windowSec seconds. A
// non-positive maxReqs disables limiting.
func NewRateLimiter(client redis.Cmdable, maxReqs, windowSec int) *RateLimiter {
	if windowSec < 1 {
		windowSec = 60
	}
	return &RateLimiter{
		client:  client,
		maxReqs: maxReqs,
		window:  time.Duration(windowSec) * time.Second,
		now:     time.Now,
	}
}

// Middleware enforces the limit. Redis errors fail open.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.maxReqs <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		allowed, err := rl.allow(r.Context(), rateLimitKeyPrefix+ip)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow records the request and reports whether it fits in the window.
// Rejected requests are recorded too, so a client hammering the API stays
// blocked until it backs off.
func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := rl.now()
	windowStart := now.Add(-rl.window).UnixMilli()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: fmt.Sprintf("%d", now.UnixNano())})
	pipe.Expire(ctx, key, rl.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(rl.maxReqs), nil
}

// clientIP trusts X-Forwarded-For: the service runs behind a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

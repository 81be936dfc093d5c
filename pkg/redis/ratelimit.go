package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig defines one sliding window
type RateLimitConfig struct {
	Key    string        // upstream name, e.g. "finnhub"
	Limit  int           // requests allowed per window
	Window time.Duration // window length
}

// Limits for the upstream APIs
var (
	// Finnhub free tier: 분당 60회
	FinnhubRateLimit = RateLimitConfig{Key: "finnhub", Limit: 60, Window: time.Minute}

	// Slickcharts: 스크래핑 대상이므로 보수적으로 초당 1회
	SlickchartsRateLimit = RateLimitConfig{Key: "slickcharts", Limit: 1, Window: time.Second}
)

// slidingWindow trims the sorted set to the window, then admits the request
// if the count is under the limit. Returns {allowed, remaining}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, 0}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window_ms)
return {1, limit - count - 1}
`)

// RateLimiter shares a sliding-window limit across every watson process
// using the same Redis, so concurrent strategies stay under an API quota.
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
	poll   time.Duration
	seq    atomic.Uint64
}

// NewRateLimiter creates a limiter; keys live under <prefix>:ratelimit:<key>
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, poll: 100 * time.Millisecond}
}

// Allow records one request if the window has room.
// A disabled client always allows with the full limit remaining.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (allowed bool, remaining int, err error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := time.Now().UnixMilli()
	// 같은 밀리초 요청도 구분되도록 member에 순번 추가
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))

	res, err := slidingWindow.Run(ctx, r.client.Redis(),
		[]string{r.prefix + ":ratelimit:" + cfg.Key},
		now, cfg.Window.Milliseconds(), cfg.Limit, member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	return res[0] == 1, int(res[1]), nil
}

// Wait blocks until a request is admitted or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

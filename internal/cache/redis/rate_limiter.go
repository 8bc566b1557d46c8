package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a per-venue sliding window
// backed by a Redis sorted set and an atomic Lua script. Sharing the window
// through Redis keeps multiple processes under one venue budget.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(venue domain.VenueID) string {
	return "ratelimit:" + string(venue)
}

// Allow reports whether another request to the venue fits in the window and
// counts it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, venue domain.VenueID, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(venue)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", venue, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", venue, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until a slot for the venue opens up, polling at a fixed
// interval and honouring context cancellation.
func (rl *RateLimiter) Wait(ctx context.Context, venue domain.VenueID, limit int, window time.Duration) error {
	for {
		allowed, err := rl.Allow(ctx, venue, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", venue, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

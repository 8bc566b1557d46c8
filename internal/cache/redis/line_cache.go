package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// defaultLineTTL is longer than the book TTL: odds venues update on the order
// of minutes and a short venue outage should degrade to last-known lines
// rather than an empty scan.
const defaultLineTTL = 5 * time.Minute

// LineCache implements domain.LineCache on Redis, one key per sport holding
// the full event list as JSON.
type LineCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLineCache creates a LineCache with the given freshness TTL; zero means
// the default.
func NewLineCache(c *Client, ttl time.Duration) *LineCache {
	if ttl <= 0 {
		ttl = defaultLineTTL
	}
	return &LineCache{rdb: c.Underlying(), ttl: ttl}
}

func lineKey(sportKey string) string { return "lines:" + sportKey }

// PutEvents stores the sport's events, replacing any previous set.
func (lc *LineCache) PutEvents(ctx context.Context, sportKey string, events []domain.OddsEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("redis: marshal events %s: %w", sportKey, err)
	}
	if err := lc.rdb.Set(ctx, lineKey(sportKey), data, lc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put events %s: %w", sportKey, err)
	}
	return nil
}

// GetEvents returns the cached events, or domain.ErrStaleData once the TTL
// has expired.
func (lc *LineCache) GetEvents(ctx context.Context, sportKey string) ([]domain.OddsEvent, error) {
	data, err := lc.rdb.Get(ctx, lineKey(sportKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("lines %s: %w", sportKey, domain.ErrStaleData)
		}
		return nil, fmt.Errorf("redis: get events %s: %w", sportKey, err)
	}

	var events []domain.OddsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("redis: unmarshal events %s: %w", sportKey, err)
	}
	return events, nil
}

var _ domain.LineCache = (*LineCache)(nil)

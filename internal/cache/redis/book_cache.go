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

// defaultBookTTL bounds how long a cached exchange snapshot may serve reads.
// The detector applies its own staleness check on the snapshot timestamp;
// the TTL just keeps dead tickers from lingering.
const defaultBookTTL = 10 * time.Second

// BookCache implements domain.BookCache on Redis. Snapshots are stored whole
// as JSON under one key per ticker; the scanner always replaces, never
// patches, so there is nothing to merge.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache with the given freshness TTL; zero means
// the default.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = defaultBookTTL
	}
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(ticker string) string { return "book:" + ticker }

// PutSnapshot stores the snapshot under its ticker with the freshness TTL.
func (bc *BookCache) PutSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Ticker, err)
	}
	if err := bc.rdb.Set(ctx, bookKey(snap.Ticker), data, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", snap.Ticker, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot, or domain.ErrStaleData once the
// TTL has expired.
func (bc *BookCache) GetSnapshot(ctx context.Context, ticker string) (domain.OrderbookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(ticker)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderbookSnapshot{}, fmt.Errorf("snapshot %s: %w", ticker, domain.ErrStaleData)
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", ticker, err)
	}

	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", ticker, err)
	}
	return snap, nil
}

var _ domain.BookCache = (*BookCache)(nil)

package domain

import (
	"context"
	"time"
)

// BookCache caches exchange orderbook snapshots between poll and websocket
// updates. Implementations enforce a freshness TTL; a read past the TTL
// returns ErrStaleData.
type BookCache interface {
	PutSnapshot(ctx context.Context, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, ticker string) (OrderbookSnapshot, error)
}

// LineCache caches odds-venue events between fetches so a venue outage
// degrades to last-known lines within the freshness bound.
type LineCache interface {
	PutEvents(ctx context.Context, sportKey string, events []OddsEvent) error
	GetEvents(ctx context.Context, sportKey string) ([]OddsEvent, error)
}

// RateLimiter paces outbound venue requests.
type RateLimiter interface {
	// Allow reports whether another request to the venue may be sent now and
	// records it when allowed.
	Allow(ctx context.Context, venue VenueID, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes archival objects (NDJSON journal exports).
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

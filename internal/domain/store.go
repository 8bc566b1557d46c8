package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ScanRecord summarizes one scan cycle for the append-only journal.
type ScanRecord struct {
	ID            string
	StartedAt     time.Time
	DurationMs    int64
	Instruments   int
	OddsEvents    int
	Pairs         int
	Opportunities int
	Dispatched    int
	Errors        int
}

// ScanStore journals scan cycles. Append-only; the engine never reads scans
// back during live operation.
type ScanStore interface {
	Insert(ctx context.Context, rec ScanRecord) error
	ListRecent(ctx context.Context, limit int) ([]ScanRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OpportunityStore journals detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	MarkDispatched(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttemptStore journals execution attempts and their legs.
type AttemptStore interface {
	Insert(ctx context.Context, attempt ExecutionAttempt) error
	GetByID(ctx context.Context, id string) (ExecutionAttempt, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionAttempt, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]ExecutionAttempt, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// SumRealizedPnL seeds the kill switch at startup with what already
	// happened today.
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log (kill-switch trips, venue
// flags, naked exposures).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

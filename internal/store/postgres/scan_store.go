package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// ScanStore implements domain.ScanStore using PostgreSQL.
type ScanStore struct {
	pool *pgxpool.Pool
}

// NewScanStore creates a ScanStore backed by the given connection pool.
func NewScanStore(pool *pgxpool.Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

// Insert journals one scan cycle.
func (s *ScanStore) Insert(ctx context.Context, rec domain.ScanRecord) error {
	const query = `
		INSERT INTO scans (
			id, started_at, duration_ms, instruments, odds_events,
			pairs, opportunities, dispatched, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.StartedAt, rec.DurationMs, rec.Instruments, rec.OddsEvents,
		rec.Pairs, rec.Opportunities, rec.Dispatched, rec.Errors,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert scan %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the newest scan records, capped at limit.
func (s *ScanStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	const query = `
		SELECT id, started_at, duration_ms, instruments, odds_events,
		       pairs, opportunities, dispatched, errors
		FROM scans
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scans: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		if err := rows.Scan(
			&rec.ID, &rec.StartedAt, &rec.DurationMs, &rec.Instruments, &rec.OddsEvents,
			&rec.Pairs, &rec.Opportunities, &rec.Dispatched, &rec.Errors,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list scans rows: %w", err)
	}
	return out, nil
}

// DeleteBefore removes scan records older than the cutoff and reports how
// many went away.
func (s *ScanStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete scans before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

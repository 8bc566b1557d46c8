package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL. Realized PnL
// is materialized at insert time so the startup kill-switch seed is a single
// SUM, not a JSONB walk.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Insert journals a terminal execution attempt.
func (s *AttemptStore) Insert(ctx context.Context, attempt domain.ExecutionAttempt) error {
	legsJSON, err := json.Marshal(attempt.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}

	const query = `
		INSERT INTO attempts (
			id, opportunity_id, pair_key, kind, legs, outcome,
			planned_edge, realized_edge, realized_pnl, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		attempt.ID, attempt.OpportunityID, attempt.PairKey, string(attempt.Kind),
		legsJSON, string(attempt.Outcome),
		attempt.PlannedEdge, attempt.RealizedEdge, realizedPnL(attempt),
		attempt.StartedAt, attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// GetByID fetches one attempt, returning domain.ErrNotFound when absent.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	row := s.pool.QueryRow(ctx, selectAttempt+` WHERE id = $1`, id)
	return scanAttempt(row)
}

// ListRecent returns the newest attempts, capped at limit.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	const query = selectAttempt + ` ORDER BY started_at DESC LIMIT $1`
	return s.list(ctx, query, limit)
}

// ListBefore returns attempts started before the cutoff, oldest first.
func (s *AttemptStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionAttempt, error) {
	const query = selectAttempt + ` WHERE started_at < $1 ORDER BY started_at ASC LIMIT $2`
	return s.list(ctx, query, cutoff, limit)
}

// DeleteBefore removes attempts older than the cutoff.
func (s *AttemptStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attempts WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumRealizedPnL totals the realized PnL of attempts completed since the
// given time. Used to seed the daily loss counter on restart.
func (s *AttemptStore) SumRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM attempts
		WHERE completed_at IS NOT NULL AND completed_at >= $1`, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	return sum, nil
}

// realizedPnL is the per-contract edge applied to the matched contract
// count. Unhedged outcomes carry zero here; their loss is only known once
// the naked leg resolves.
func realizedPnL(a domain.ExecutionAttempt) float64 {
	if !a.Hedged() {
		return 0
	}
	return a.RealizedEdge * a.HedgedContracts()
}

const selectAttempt = `
	SELECT id, opportunity_id, pair_key, kind, legs, outcome,
	       planned_edge, realized_edge, started_at, completed_at
	FROM attempts`

func (s *AttemptStore) list(ctx context.Context, query string, args ...any) ([]domain.ExecutionAttempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list attempts rows: %w", err)
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (domain.ExecutionAttempt, error) {
	var (
		a        domain.ExecutionAttempt
		kind     string
		outcome  string
		legsJSON []byte
	)
	err := row.Scan(&a.ID, &a.OpportunityID, &a.PairKey, &kind, &legsJSON,
		&outcome, &a.PlannedEdge, &a.RealizedEdge, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionAttempt{}, domain.ErrNotFound
		}
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: scan attempt: %w", err)
	}
	a.Kind = domain.OpportunityKind(kind)
	a.Outcome = domain.AttemptOutcome(outcome)
	if err := json.Unmarshal(legsJSON, &a.Legs); err != nil {
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: unmarshal legs: %w", err)
	}
	return a, nil
}

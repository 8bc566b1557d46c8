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

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. The
// matched pair and legs are stored as JSONB: they are evidence for review,
// never queried field-by-field.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert journals a detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	pairJSON, err := json.Marshal(opp.Pair)
	if err != nil {
		return fmt.Errorf("postgres: marshal pair: %w", err)
	}
	legsJSON, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}

	const query = `
		INSERT INTO opportunities (
			id, kind, pair_key, pair, gross_edge, net_edge, max_size,
			legs, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, string(opp.Kind), opp.Pair.Key(), pairJSON,
		opp.GrossEdge, opp.NetEdge, opp.MaxSize, legsJSON, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// MarkDispatched flags an opportunity as handed to the coordinator.
func (s *OpportunityStore) MarkDispatched(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET dispatched = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark dispatched %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the newest opportunities, capped at limit.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	const query = selectOpportunity + ` ORDER BY detected_at DESC LIMIT $1`
	return s.list(ctx, query, limit)
}

// ListBefore returns opportunities detected before the cutoff, oldest first,
// for the archive pass.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	const query = selectOpportunity + ` WHERE detected_at < $1 ORDER BY detected_at ASC LIMIT $2`
	return s.list(ctx, query, cutoff, limit)
}

// DeleteBefore removes opportunities older than the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

const selectOpportunity = `
	SELECT id, kind, pair, gross_edge, net_edge, max_size, legs, detected_at
	FROM opportunities`

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return out, nil
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		opp      domain.Opportunity
		kind     string
		pairJSON []byte
		legsJSON []byte
	)
	err := row.Scan(&opp.ID, &kind, &pairJSON, &opp.GrossEdge, &opp.NetEdge,
		&opp.MaxSize, &legsJSON, &opp.DetectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: scan opportunity: %w", err)
	}
	opp.Kind = domain.OpportunityKind(kind)
	if err := json.Unmarshal(pairJSON, &opp.Pair); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: unmarshal pair: %w", err)
	}
	if err := json.Unmarshal(legsJSON, &opp.Legs); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: unmarshal legs: %w", err)
	}
	return opp, nil
}

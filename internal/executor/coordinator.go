package executor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Approver is the pre-trade risk gate. A non-nil error vetoes the attempt.
type Approver interface {
	Approve(o domain.Opportunity) error
}

// Portfolio receives every terminal attempt for exposure accounting.
type Portfolio interface {
	RecordAttempt(a domain.ExecutionAttempt)
}

// Journal is the append-only record of execution attempts. Write-only during
// live operation.
type Journal interface {
	RecordAttempt(ctx context.Context, a domain.ExecutionAttempt) error
}

// Alerter delivers out-of-band notifications. Implementations must be safe to
// call from a goroutine; the coordinator never waits on delivery.
type Alerter interface {
	Alert(ctx context.Context, severity, message string, fields map[string]string)
}

// Config tunes the coordinator. Zero values fall back to defaults.
type Config struct {
	// Leg1Wait bounds the fill wait on the first leg. Kept short: leg1 is
	// deliberately the thinner side.
	Leg1Wait time.Duration
	// Leg2Wait bounds the fill wait on the hedge leg.
	Leg2Wait time.Duration
	// PollInterval paces exchange order status polling.
	PollInterval time.Duration
	// Staleness bounds opportunity age at consumption time.
	Staleness time.Duration
	// Cooldown suppresses re-attempting a pair after a terminal attempt.
	Cooldown time.Duration
	// DryRun simulates fills at planned prices instead of placing anything.
	DryRun bool
	// DryRunFillProb is the per-leg fill probability in dry-run mode, so
	// rehearsals exercise the abandon and naked-exposure paths too. Values
	// outside (0, 1] mean always fill.
	DryRunFillProb float64
}

func (c Config) withDefaults() Config {
	if c.Leg1Wait <= 0 {
		c.Leg1Wait = 3 * time.Second
	}
	if c.Leg2Wait <= 0 {
		c.Leg2Wait = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Staleness <= 0 {
		c.Staleness = 2 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.DryRunFillProb <= 0 || c.DryRunFillProb > 1 {
		c.DryRunFillProb = 1
	}
	return c
}

// Coordinator reads opportunities from a channel and drives each one's two
// legs to a terminal state. Leg2 is never submitted before leg1's outcome is
// known, and is sized to leg1's realized fill. At most one attempt runs per
// matched pair; attempts on distinct pairs run concurrently.
type Coordinator struct {
	oppCh     <-chan domain.Opportunity
	exchange  domain.ExchangeClient
	books     map[domain.VenueID]domain.BetPlacer
	risk      Approver
	portfolio Portfolio
	journal   Journal
	alerter   Alerter
	cfg       Config
	clock     domain.Clock
	logger    *slog.Logger

	inflight *inflight
	cooldown *cooldown
	wg       sync.WaitGroup

	// randFloat backs the dry-run fill coin flip. Swappable in tests.
	randFloat func() float64
}

func NewCoordinator(
	oppCh <-chan domain.Opportunity,
	exchange domain.ExchangeClient,
	books map[domain.VenueID]domain.BetPlacer,
	risk Approver,
	portfolio Portfolio,
	journal Journal,
	alerter Alerter,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		oppCh:     oppCh,
		exchange:  exchange,
		books:     books,
		risk:      risk,
		portfolio: portfolio,
		journal:   journal,
		alerter:   alerter,
		cfg:       cfg,
		clock:     domain.RealClock{},
		logger:    logger.With(slog.String("component", "coordinator")),
		inflight:  newInflight(),
		cooldown:  newCooldown(cfg.Cooldown),
		randFloat: rand.Float64,
	}
}

// Run consumes opportunities until the context is cancelled, then waits for
// in-flight attempts to reach a terminal state before returning. An attempt
// past leg1 fill is never abandoned mid-flight.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		slog.Bool("dry_run", c.cfg.DryRun),
		slog.Duration("leg1_wait", c.cfg.Leg1Wait),
		slog.Duration("leg2_wait", c.cfg.Leg2Wait))
	defer c.logger.Info("coordinator stopped")

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		case opp, ok := <-c.oppCh:
			if !ok {
				c.wg.Wait()
				return nil
			}
			c.dispatch(ctx, opp)
		case <-cleanup.C:
			c.cooldown.cleanup(c.clock.Now())
		}
	}
}

// dispatch applies the consumption-time guards and spawns the attempt.
func (c *Coordinator) dispatch(ctx context.Context, opp domain.Opportunity) {
	log := c.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("pair", opp.Pair.Key()))

	now := c.clock.Now()
	if opp.Stale(now, c.cfg.Staleness) {
		log.Debug("opportunity stale at consumption, dropped",
			slog.Duration("age", opp.Age(now)))
		return
	}
	if c.cooldown.active(opp.Pair.Key(), now) {
		log.Debug("pair in cooldown, dropped")
		return
	}
	if !c.inflight.tryAcquire(opp.Pair.Key()) {
		log.Debug("attempt already in flight for pair, dropped")
		return
	}
	if err := c.risk.Approve(opp); err != nil {
		c.inflight.release(opp.Pair.Key())
		if errors.Is(err, domain.ErrKillSwitch) {
			log.Warn("opportunity vetoed", slog.String("reason", err.Error()))
		} else {
			log.Info("opportunity vetoed", slog.String("reason", err.Error()))
		}
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.release(opp.Pair.Key())
		attempt := c.execute(ctx, opp)
		c.finish(ctx, attempt)
	}()
}

// execute drives the two legs. Leg1 first; leg2 only after leg1's outcome is
// known, sized to the realized fill.
func (c *Coordinator) execute(ctx context.Context, opp domain.Opportunity) domain.ExecutionAttempt {
	attempt := domain.ExecutionAttempt{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		PairKey:       opp.Pair.Key(),
		Kind:          opp.Kind,
		PlannedEdge:   opp.NetEdge,
		StartedAt:     c.clock.Now(),
	}
	log := c.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("pair", attempt.PairKey))

	attempt.Legs[0] = c.runLeg(ctx, opp.Legs[0], opp.Legs[0].Size, c.cfg.Leg1Wait)
	if !attempt.Legs[0].State.Filled() {
		attempt.Legs[1] = domain.LegResult{
			Venue:      opp.Legs[1].Venue,
			Instrument: opp.Legs[1].Instrument,
			Outcome:    opp.Legs[1].Outcome,
			State:      domain.LegCancelled,
		}
		attempt.Outcome = domain.OutcomeAbandoned
		c.complete(&attempt)
		log.Info("attempt abandoned, leg1 did not fill",
			slog.String("leg1_state", string(attempt.Legs[0].State)))
		return attempt
	}

	ratio := attempt.Legs[0].FilledSize / opp.Legs[0].Size
	leg2Size := opp.Legs[1].Size * ratio
	attempt.Legs[1] = c.runLeg(ctx, opp.Legs[1], leg2Size, c.cfg.Leg2Wait)

	switch {
	case attempt.Legs[1].FilledSize >= leg2Size:
		attempt.Outcome = domain.OutcomeBothFilled
	case attempt.Legs[1].FilledSize > 0:
		attempt.Outcome = domain.OutcomeLeg2Partial
	default:
		attempt.Outcome = domain.OutcomeNakedExposure
	}
	if attempt.Hedged() {
		attempt.RealizedEdge = realizedEdge(attempt)
	}
	c.complete(&attempt)

	log.Info("attempt complete",
		slog.String("outcome", string(attempt.Outcome)),
		slog.Float64("planned_edge", attempt.PlannedEdge),
		slog.Float64("realized_edge", attempt.RealizedEdge),
		slog.Float64("leg1_filled", attempt.Legs[0].FilledSize),
		slog.Float64("leg2_filled", attempt.Legs[1].FilledSize))
	return attempt
}

func (c *Coordinator) complete(a *domain.ExecutionAttempt) {
	done := c.clock.Now()
	a.CompletedAt = &done
}

// realizedEdge recomputes the edge from achieved prices, probability space,
// before fees.
func realizedEdge(a domain.ExecutionAttempt) float64 {
	var exch, book domain.LegResult
	if a.Legs[0].Venue == domain.VenueKalshi {
		exch, book = a.Legs[0], a.Legs[1]
	} else {
		exch, book = a.Legs[1], a.Legs[0]
	}
	return book.FilledPrice - exch.FilledPrice
}

// finish records the terminal attempt and raises the naked-exposure alert.
// The alert is fire-and-forget: delivery must never block the coordinator,
// and it fires regardless of any halted state.
func (c *Coordinator) finish(ctx context.Context, a domain.ExecutionAttempt) {
	if err := c.journal.RecordAttempt(ctx, a); err != nil {
		c.logger.Warn("attempt journal write failed",
			slog.String("attempt_id", a.ID),
			slog.String("error", err.Error()))
	}
	c.portfolio.RecordAttempt(a)
	c.cooldown.mark(a.PairKey, c.clock.Now())

	if a.Outcome == domain.OutcomeNakedExposure {
		leg1 := a.Legs[0]
		fields := map[string]string{
			"attempt_id": a.ID,
			"pair":       a.PairKey,
			"venue":      string(leg1.Venue),
			"instrument": leg1.Instrument,
			"outcome":    leg1.Outcome,
		}
		go c.alerter.Alert(context.WithoutCancel(ctx), "critical",
			"naked exposure: leg1 filled, leg2 failed, position unhedged", fields)
	}
}

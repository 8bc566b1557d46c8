package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/odds"
)

// runLeg drives one planned leg to a terminal LegResult within the wait
// bound. Exchange legs go through the order lifecycle (place, poll, cancel if
// unfilled); book legs are a single synchronous placement.
func (c *Coordinator) runLeg(ctx context.Context, leg domain.PlannedLeg, size float64, wait time.Duration) domain.LegResult {
	res := domain.LegResult{
		Venue:       leg.Venue,
		Instrument:  leg.Instrument,
		Outcome:     leg.Outcome,
		PlannedSize: size,
		SubmittedAt: c.clock.Now(),
	}
	if c.cfg.DryRun {
		return c.simulateLeg(res, leg, size)
	}
	if leg.Venue == domain.VenueKalshi {
		return c.runExchangeLeg(ctx, res, leg, size, wait)
	}
	return c.runBookLeg(ctx, res, leg, size, wait)
}

// simulateLeg fills instantly at the planned price. Used in dry-run mode so
// the whole pipeline downstream of placement exercises identically. With
// DryRunFillProb below 1 a leg can miss, which rehearses the abandon and
// naked-exposure paths without touching a venue.
func (c *Coordinator) simulateLeg(res domain.LegResult, leg domain.PlannedLeg, size float64) domain.LegResult {
	if c.randFloat() >= c.cfg.DryRunFillProb {
		res.State = domain.LegRejected
		res.CompletedAt = c.clock.Now()
		return res
	}
	res.OrderID = "dry-" + uuid.NewString()
	res.State = domain.LegFilled
	res.FilledSize = size
	res.FilledPrice = leg.Price
	res.Stake = leg.Stake * size / leg.Size
	res.CompletedAt = c.clock.Now()
	return res
}

func (c *Coordinator) runExchangeLeg(ctx context.Context, res domain.LegResult, leg domain.PlannedLeg, size float64, wait time.Duration) domain.LegResult {
	count := int(math.Floor(size))
	if count <= 0 {
		res.State = domain.LegRejected
		res.CompletedAt = c.clock.Now()
		return res
	}
	req := domain.OrderRequest{
		Ticker:     leg.Instrument,
		Side:       leg.Side,
		PriceCents: odds.ProbToCents(leg.Price),
		Count:      count,
		ClientID:   uuid.NewString(),
	}
	handle, err := c.exchange.PlaceOrder(ctx, req)
	if err != nil {
		c.logger.Warn("exchange order placement failed",
			slog.String("ticker", leg.Instrument),
			slog.String("error", err.Error()))
		res.State = domain.LegRejected
		res.CompletedAt = c.clock.Now()
		return res
	}
	res.OrderID = handle.OrderID

	deadline := c.clock.Now().Add(wait)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.exchange.GetOrderStatus(ctx, handle)
		if err == nil {
			res.FilledSize = float64(status.FilledCount)
			if status.AvgPriceCents > 0 {
				res.FilledPrice = status.AvgPriceCents / 100.0
			}
			if status.State == domain.LegFilled || status.State == domain.LegRejected {
				res.State = status.State
				break
			}
		} else {
			c.logger.Debug("order status poll failed",
				slog.String("order_id", handle.OrderID),
				slog.String("error", err.Error()))
		}

		if !c.clock.Now().Before(deadline) {
			// Cancel the resting remainder. Cancellation only ever targets
			// unfilled size; filled contracts stay on.
			if cerr := c.exchange.CancelOrder(ctx, handle); cerr != nil {
				c.logger.Warn("order cancel failed",
					slog.String("order_id", handle.OrderID),
					slog.String("error", cerr.Error()))
			}
			if res.FilledSize > 0 {
				res.State = domain.LegPartiallyFilled
			} else {
				res.State = domain.LegTimedOut
			}
			break
		}

		select {
		case <-ctx.Done():
			if cerr := c.exchange.CancelOrder(ctx, handle); cerr != nil {
				c.logger.Warn("order cancel failed",
					slog.String("order_id", handle.OrderID),
					slog.String("error", cerr.Error()))
			}
			if res.FilledSize > 0 {
				res.State = domain.LegPartiallyFilled
			} else {
				res.State = domain.LegCancelled
			}
			res.CompletedAt = c.clock.Now()
			return res
		case <-ticker.C:
		}
	}

	if res.FilledPrice == 0 && res.FilledSize > 0 {
		res.FilledPrice = leg.Price
	}
	res.Stake = res.FilledSize * res.FilledPrice
	res.CompletedAt = c.clock.Now()
	return res
}

func (c *Coordinator) runBookLeg(ctx context.Context, res domain.LegResult, leg domain.PlannedLeg, stake float64, wait time.Duration) domain.LegResult {
	placer, ok := c.books[leg.Venue]
	if !ok {
		c.logger.Warn("no placement capability for venue",
			slog.String("venue", string(leg.Venue)))
		res.State = domain.LegRejected
		res.CompletedAt = c.clock.Now()
		return res
	}

	betCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	req := domain.BetRequest{
		Venue:    leg.Venue,
		EventID:  leg.Instrument,
		Market:   leg.Market,
		Outcome:  leg.Outcome,
		American: leg.American,
		Point:    leg.Point,
		Stake:    stake,
		ClientID: uuid.NewString(),
	}
	result, err := placer.PlaceBet(betCtx, req)
	switch {
	case err != nil && betCtx.Err() != nil:
		res.State = domain.LegTimedOut
	case err != nil:
		c.logger.Warn("bet placement failed",
			slog.String("venue", string(leg.Venue)),
			slog.String("error", err.Error()))
		res.State = domain.LegRejected
	case !result.Accepted:
		c.logger.Info("bet rejected by venue",
			slog.String("venue", string(leg.Venue)),
			slog.String("message", result.Message))
		res.State = domain.LegRejected
	default:
		res.OrderID = result.BetID
		res.FilledSize = result.Stake
		res.Stake = result.Stake
		if prob, perr := odds.AmericanToImplied(result.American); perr == nil {
			res.FilledPrice = prob
		} else {
			res.FilledPrice = leg.Price
		}
		if result.Stake < stake {
			res.State = domain.LegPartiallyFilled
		} else {
			res.State = domain.LegFilled
		}
	}
	res.CompletedAt = c.clock.Now()
	return res
}

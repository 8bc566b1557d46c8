package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// RiskManager is the view of the risk manager the handlers expose: the
// exposure snapshot plus the manual controls (halt, reset, throttle clear).
type RiskManager interface {
	Snapshot() domain.ExposureSnapshot
	AvailableBankroll() decimal.Decimal
	Halted() (bool, string)
	Halt(reason string)
	Reset()
	ClearThrottle(v domain.VenueID)
}

// RiskHandler serves exposure, P&L, and kill-switch endpoints.
type RiskHandler struct {
	risk   RiskManager
	logger *slog.Logger
}

func NewRiskHandler(risk RiskManager, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, logger: logger}
}

type exposureResponse struct {
	domain.ExposureSnapshot
	AvailableBankroll decimal.Decimal `json:"available_bankroll"`
}

// GetExposure returns the current exposure snapshot and available bankroll.
// GET /api/exposure
func (h *RiskHandler) GetExposure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, exposureResponse{
		ExposureSnapshot:  h.risk.Snapshot(),
		AvailableBankroll: h.risk.AvailableBankroll(),
	})
}

type pnlResponse struct {
	Day           string          `json:"day"`
	DailyPnL      decimal.Decimal `json:"daily_pnl"`
	HighWaterMark decimal.Decimal `json:"high_water_mark"`
	Halted        bool            `json:"halted"`
	HaltReason    string          `json:"halt_reason,omitempty"`
}

// GetPnL returns the realized P&L counters.
// GET /api/pnl
func (h *RiskHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	snap := h.risk.Snapshot()
	writeJSON(w, http.StatusOK, pnlResponse{
		Day:           snap.Day,
		DailyPnL:      snap.DailyPnL,
		HighWaterMark: snap.HighWaterMark,
		Halted:        snap.Halted,
		HaltReason:    snap.HaltReason,
	})
}

type haltRequest struct {
	Reason string `json:"reason"`
}

// Halt trips the kill switch manually.
// POST /api/risk/halt
func (h *RiskHandler) Halt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason required")
		return
	}
	h.logger.WarnContext(r.Context(), "manual halt requested",
		slog.String("reason", req.Reason))
	h.risk.Halt(req.Reason)
	halted, reason := h.risk.Halted()
	writeJSON(w, http.StatusOK, map[string]any{"halted": halted, "reason": reason})
}

// Reset clears the kill switch.
// POST /api/risk/reset
func (h *RiskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.logger.WarnContext(r.Context(), "kill switch reset requested")
	h.risk.Reset()
	halted, reason := h.risk.Halted()
	writeJSON(w, http.StatusOK, map[string]any{"halted": halted, "reason": reason})
}

type clearThrottleRequest struct {
	Venue string `json:"venue"`
}

// ClearThrottle re-admits a throttled venue.
// POST /api/risk/throttle/clear
func (h *RiskHandler) ClearThrottle(w http.ResponseWriter, r *http.Request) {
	var req clearThrottleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Venue == "" {
		writeError(w, http.StatusBadRequest, "venue required")
		return
	}
	h.risk.ClearThrottle(domain.VenueID(req.Venue))
	writeJSON(w, http.StatusOK, map[string]string{"venue": req.Venue, "throttle": "cleared"})
}

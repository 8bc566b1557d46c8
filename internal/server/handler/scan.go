package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// ScanLister is the slice of the scan journal the handler reads.
type ScanLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ScanRecord, error)
}

// ScanHandler serves the scan-cycle journal.
type ScanHandler struct {
	scans  ScanLister
	logger *slog.Logger
}

func NewScanHandler(scans ScanLister, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scans: scans, logger: logger}
}

type listScansResponse struct {
	Scans []domain.ScanRecord `json:"scans"`
}

// ListRecent returns the most recent scan cycle records.
// GET /api/scans?limit=50
func (h *ScanHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	scans, err := h.scans.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list scans failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []domain.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, listScansResponse{Scans: scans})
}

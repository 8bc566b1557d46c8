package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// AttemptReader is the slice of the attempt journal the handler reads.
type AttemptReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error)
	GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error)
}

// AttemptHandler serves the execution-attempt endpoints.
type AttemptHandler struct {
	attempts AttemptReader
	logger   *slog.Logger
}

func NewAttemptHandler(attempts AttemptReader, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{attempts: attempts, logger: logger}
}

type listAttemptsResponse struct {
	Attempts []domain.ExecutionAttempt `json:"attempts"`
}

// ListRecent returns the most recent execution attempts.
// GET /api/attempts?limit=50
func (h *AttemptHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.attempts.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list attempts failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []domain.ExecutionAttempt{}
	}
	writeJSON(w, http.StatusOK, listAttemptsResponse{Attempts: attempts})
}

// GetByID returns one attempt with its legs.
// GET /api/attempts/{id}
func (h *AttemptHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	attempt, err := h.attempts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get attempt failed",
			slog.String("attempt_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get attempt")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

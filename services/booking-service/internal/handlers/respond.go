package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps domain errors to status codes. A lost booking race is a 409
// with code slot_unavailable so clients know to re-query the grid.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, model.ErrSlotUnavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "slot_unavailable", Message: err.Error()})
	case errors.Is(err, model.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, lock.ErrNotAcquired):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "busy", Message: "try again"})
	default:
		logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type OverrideWriter interface {
	UpsertOverride(ctx context.Context, clinicID string, ov model.DateOverride) error
}

type CacheInvalidator interface {
	Invalidate(clinicID string)
}

type ClinicHandler struct {
	overrides OverrideWriter
	cache     CacheInvalidator
	logger    *slog.Logger
}

func NewClinicHandler(overrides OverrideWriter, cache CacheInvalidator, logger *slog.Logger) *ClinicHandler {
	return &ClinicHandler{overrides: overrides, cache: cache, logger: logger}
}

type intervalBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type overrideRequest struct {
	ClinicID string         `json:"clinic_id"`
	Date     string         `json:"date"`
	Kind     string         `json:"kind"`
	Hours    []intervalBody `json:"hours"`
	Breaks   []intervalBody `json:"breaks"`
	Reason   string         `json:"reason"`
}

// PutOverride stores a forced-open or forced-closed date and drops the clinic's
// cached calendar.
func (h *ClinicHandler) PutOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	date, err := model.ParseDate(req.Date)
	if req.ClinicID == "" || err != nil {
		http.Error(w, "clinic_id and date required", http.StatusBadRequest)
		return
	}
	kind := model.OverrideKind(strings.TrimSpace(req.Kind))
	if kind != model.OverrideClosed && kind != model.OverrideOpen {
		http.Error(w, "kind must be open or closed", http.StatusBadRequest)
		return
	}
	hours, ok := parseIntervals(req.Hours)
	if !ok {
		http.Error(w, "invalid hours", http.StatusBadRequest)
		return
	}
	breaks, ok := parseIntervals(req.Breaks)
	if !ok {
		http.Error(w, "invalid breaks", http.StatusBadRequest)
		return
	}

	ov := model.DateOverride{Date: date, Kind: kind, Hours: hours, Breaks: breaks, Reason: strings.TrimSpace(req.Reason)}
	if err := h.overrides.UpsertOverride(r.Context(), req.ClinicID, ov); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.cache.Invalidate(req.ClinicID)
	w.WriteHeader(http.StatusNoContent)
}

func parseIntervals(in []intervalBody) ([]model.Interval, bool) {
	out := make([]model.Interval, 0, len(in))
	for _, b := range in {
		s, err := model.ParseClock(b.Start)
		if err != nil {
			return nil, false
		}
		e, err := model.ParseClock(b.End)
		if err != nil {
			return nil, false
		}
		iv := model.Interval{Start: s, End: e}
		if !iv.Valid() {
			return nil, false
		}
		out = append(out, iv)
	}
	return out, true
}

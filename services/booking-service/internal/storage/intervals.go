package storage

import (
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Intervals are stored as JSON arrays of {"start":"HH:MM","end":"HH:MM"}.
type intervalJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func decodeIntervals(raw []byte) ([]model.Interval, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in []intervalJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode intervals: %w", err)
	}
	out := make([]model.Interval, 0, len(in))
	for _, iv := range in {
		s, err := model.ParseClock(iv.Start)
		if err != nil {
			return nil, err
		}
		e, err := model.ParseClock(iv.End)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Interval{Start: s, End: e})
	}
	return out, nil
}

func encodeIntervals(ivs []model.Interval) ([]byte, error) {
	out := make([]intervalJSON, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, intervalJSON{Start: iv.Start.String(), End: iv.End.String()})
	}
	return json.Marshal(out)
}

package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency probe for /readyz. A nil Check is skipped,
// which lets optional dependencies be listed unconditionally.
type ReadyCheck struct {
	Name     string
	Check    func(context.Context) error
	Optional bool
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewBaseMuxWithReady serves /healthz and a JSON /readyz. Failed optional
// checks are reported but do not fail readiness.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := readyReport{Status: "ok", Checks: map[string]string{}}
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			name := c.Name
			if name == "" {
				name = "dependency"
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.Check(ctx)
			cancel()
			switch {
			case err == nil:
				report.Checks[name] = "ok"
			case c.Optional:
				report.Checks[name] = "degraded: " + err.Error()
			default:
				report.Checks[name] = err.Error()
				report.Status = "unavailable"
			}
		}
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	cases := []struct {
		name   string
		checks []ReadyCheck
		want   int
	}{
		{"none", nil, http.StatusOK},
		{"all up", []ReadyCheck{{Name: "db", Check: up}}, http.StatusOK},
		{"required down", []ReadyCheck{{Name: "db", Check: down}}, http.StatusServiceUnavailable},
		{"optional down", []ReadyCheck{{Name: "db", Check: up}, {Name: "kafka", Check: down, Optional: true}}, http.StatusOK},
		{"nil check", []ReadyCheck{{Name: "redis"}}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := NewBaseMuxWithReady(tc.checks...)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			var report readyReport
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode: %v", err)
			}
		})
	}
}

package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes the browser origins allowed to call the public booking
// endpoints.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORSFromList builds a policy from a comma separated origin list with the
// methods and headers the booking API uses.
func CORSFromList(origins string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: splitList(origins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key", RequestIDHeader, "X-Clinic-Id"},
		MaxAge:         10 * time.Minute,
	}
}

// WithCORS is a no-op when no origins are configured.
func WithCORS(p CORSPolicy) Middleware {
	origins := map[string]bool{}
	wildcard := false
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[o] = true
		}
	}
	if len(origins) == 0 && !wildcard {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := strings.Join(p.AllowedMethods, ", ")
	headers := strings.Join(p.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			allow := ""
			switch {
			case origins[strings.ToLower(origin)]:
				allow = origin
			case wildcard && p.AllowCredentials:
				allow = origin
			case wildcard:
				allow = "*"
			default:
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allow)
			if p.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if methods != "" {
					h.Set("Access-Control-Allow-Methods", methods)
				}
				if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				if p.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(p.MaxAge.Seconds())))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

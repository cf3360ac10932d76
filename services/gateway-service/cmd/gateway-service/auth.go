package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
)

// Identity headers set by the gateway. Inbound copies are dropped.
const (
	headerUserID   = "X-User-Id"
	headerClinicID = "X-Clinic-Id"
	headerRole     = "X-Role"
)

// requireAuth verifies the bearer token and forwards its identity. A request
// naming a clinic other than the token's, in the query or a JSON body, is
// refused.
func requireAuth(next http.Handler, v *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(headerUserID)
		r.Header.Del(headerClinicID)
		r.Header.Del(headerRole)

		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(raw)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if !sameClinic(r, claims.ClinicID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		r.Header.Set(headerUserID, claims.Subject)
		r.Header.Set(headerClinicID, claims.ClinicID)
		r.Header.Set(headerRole, claims.Role)
		next.ServeHTTP(w, r)
	})
}

func bearer(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func sameClinic(r *http.Request, clinicID string) bool {
	if q := r.URL.Query().Get("clinic_id"); q != "" && q != clinicID {
		return false
	}
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var fields struct {
		ClinicID *string `json:"clinic_id"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &fields) != nil || fields.ClinicID == nil {
		return true
	}
	return strings.TrimSpace(*fields.ClinicID) == clinicID
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(headerRole)]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
)

type upstreams struct {
	booking   http.Handler
	scheduler http.Handler
}

func newProxy(raw string, logger *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "err", err, "upstream", target.Host, "path", r.URL.Path)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return p, nil
}

// registerRoutes exposes the booking endpoints patients use without a token and
// puts every staff endpoint behind a verified clinic token. Clinic
// configuration needs the admin role.
func registerRoutes(mux *http.ServeMux, up upstreams, v *auth.Verifier) {
	staff := func(h http.Handler) http.Handler {
		return requireAuth(requireRole(h, auth.RoleStaff, auth.RoleAdmin), v)
	}
	admin := func(h http.Handler) http.Handler {
		return requireAuth(requireRole(h, auth.RoleAdmin), v)
	}

	registerProxy(mux, "/api/v1/public/", up.booking)

	registerProxy(mux, "/api/v1/appointments", staff(up.booking))
	registerProxy(mux, "/api/v1/blocks", staff(up.booking))
	registerProxy(mux, "/api/v1/notifications", staff(up.scheduler))
	registerProxy(mux, "/api/v1/notification-preferences", staff(up.scheduler))
	registerProxy(mux, "/api/v1/patients", staff(up.scheduler))

	registerProxy(mux, "/api/v1/clinics", admin(up.booking))
	registerProxy(mux, "/api/v1/notification-templates", admin(up.scheduler))
	registerProxy(mux, "/api/v1/notification-settings", admin(up.scheduler))
}

// registerProxy serves prefix and everything below it.
func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix+"/", handler)
	}
}

package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cashkiosk/pkg/platform/httputil"
	"cashkiosk/pkg/platform/middleware/auth"
	"cashkiosk/pkg/platform/middleware/request"
	"cashkiosk/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterDeps are the pieces NewRouter wires together. Tokens is optional;
// without it every request is treated as system-initiated.
type RouterDeps struct {
	Logger   *slog.Logger
	Tokens   auth.TokenValidator
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Routes   []Registrar
}

// NewRouter builds the HTTP surface: feature routes behind the request
// middleware chain, plus /healthz and /metrics.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if deps.Tokens != nil {
			r.Use(auth.OptionalAuth(deps.Tokens, deps.Logger))
		}
		for _, routes := range deps.Routes {
			routes.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": body})
	}
}

package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/physio-quota-tracker/internal/cases"
	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	httpmiddleware "github.com/wolfman30/physio-quota-tracker/internal/http/middleware"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// HealthCheck probes one dependency for /ready.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	ClinicHandler  *clinic.Handler
	CasesHandler   *cases.Handler
	SyncLogHandler *synclog.Handler
	SyncHandler    *syncjobs.Handler

	AuthSecret         string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter

	// Dependency probes keyed by name, e.g. "postgres", "redis".
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1/clinics/{clinicID}", func(clinicRouter chi.Router) {
		clinicRouter.Use(httpmiddleware.StaffJWT(cfg.AuthSecret))
		clinicRouter.Use(httpmiddleware.RequireClinicAccess)
		if cfg.RateLimiter != nil {
			clinicRouter.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		if cfg.ClinicHandler != nil {
			cfg.ClinicHandler.RegisterRoutes(clinicRouter)
		}
		if cfg.CasesHandler != nil {
			cfg.CasesHandler.RegisterRoutes(clinicRouter)
		}
		if cfg.SyncLogHandler != nil {
			cfg.SyncLogHandler.RegisterRoutes(clinicRouter)
		}
		if cfg.SyncHandler != nil {
			cfg.SyncHandler.RegisterRoutes(clinicRouter)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ready"
		if status != http.StatusOK {
			state = "unavailable"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

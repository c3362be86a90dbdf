package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/authgate/internal/account"
	"github.com/odyssey-erp/authgate/internal/authn"
	"github.com/odyssey-erp/authgate/internal/observability"
	"github.com/odyssey-erp/authgate/internal/platform/httpx"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Auth           *authn.Middleware
	AuthHandler    *authn.Handler
	AccountHandler *account.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// rateLimitedPaths are throttled per client IP.
var rateLimitedPaths = map[string]bool{
	"/login":    true,
	"/register": true,
}

// NewRouter constructs the chi.Router with authgate defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Auth:           params.Auth,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}
	r.Use(credentialRateLimit(params.Config))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.AccountHandler != nil {
		params.AccountHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

// credentialRateLimit throttles the endpoints that check passwords.
func credentialRateLimit(cfg *Config) func(http.Handler) http.Handler {
	limit := 60
	if cfg != nil && cfg.LoginRateLimit > 0 {
		limit = cfg.LoginRateLimit
	}
	limiter := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "retry later")
		}),
	)
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && rateLimitedPaths[r.URL.Path] {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

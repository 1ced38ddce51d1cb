package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/awaybot/awaybot/internal/middleware"
)

// HandlerSet holds handler functions injected from the serve command to
// avoid import cycles. A nil handler leaves its route unregistered.
type HandlerSet struct {
	// Memory handlers
	MemoryDashboard http.HandlerFunc
	MemorySearch    http.HandlerFunc
	History         http.HandlerFunc
	Forget          http.HandlerFunc
	ForgetAll       http.HandlerFunc
	Wipe            http.HandlerFunc
	Export          http.HandlerFunc
	GetMode         http.HandlerFunc
	SetMode         http.HandlerFunc
	Privacy         http.HandlerFunc

	// Ingestion and chat
	UploadFile   http.HandlerFunc
	SendMessage  http.HandlerFunc
	GetAutoReply http.HandlerFunc
	SetAutoReply http.HandlerFunc

	// Governance
	GetQuota      http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	AuthMiddleware func(http.Handler) http.Handler

	// ReadyChecks are run by /ready, keyed by dependency name.
	ReadyChecks map[string]func(context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { HandleError(w, ErrNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { HandleError(w, ErrMethodNotAllowed) })

	// Liveness probe, no dependency checks
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Get("/ready", readiness(h.ReadyChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}

		// The privacy notice is public.
		route(r, http.MethodGet, "/privacy", h.Privacy)

		r.Group(func(r chi.Router) {
			if h.AuthMiddleware != nil {
				r.Use(h.AuthMiddleware)
			}

			route(r, http.MethodGet, "/auto-reply", h.GetAutoReply)
			route(r, http.MethodPut, "/auto-reply", h.SetAutoReply)

			r.Route("/users/{userID}", func(r chi.Router) {
				route(r, http.MethodDelete, "/", h.Wipe)

				route(r, http.MethodGet, "/memory", h.MemoryDashboard)
				route(r, http.MethodGet, "/memory/search", h.MemorySearch)
				route(r, http.MethodGet, "/history", h.History)
				route(r, http.MethodPost, "/forget", h.Forget)
				route(r, http.MethodPost, "/forget-all", h.ForgetAll)
				route(r, http.MethodGet, "/export", h.Export)
				route(r, http.MethodGet, "/mode", h.GetMode)
				route(r, http.MethodPut, "/mode", h.SetMode)

				route(r, http.MethodPost, "/files", h.UploadFile)
				route(r, http.MethodPost, "/messages", h.SendMessage)

				route(r, http.MethodGet, "/quota", h.GetQuota)
				route(r, http.MethodGet, "/audit", h.ListAuditLogs)
			})
		})
	})

	return r
}

func route(r chi.Router, method, pattern string, fn http.HandlerFunc) {
	if fn != nil {
		r.MethodFunc(method, pattern, fn)
	}
}

func readiness(checks map[string]func(context.Context) error) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}
		JSON(w, status, health)
	}
}

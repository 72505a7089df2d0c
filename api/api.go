// Package api exposes the engine over HTTP: enqueue, job queries, counts
// by state, and dead-letter administration. Responses are JSON; errors
// are {"error": "..."} with a status derived from the queuectl sentinel.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/xraph/queuectl/engine"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng     *engine.Engine
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithEnqueueRateLimit limits POST /v1/jobs to r requests per second with
// the given burst. The default is 50/s with a burst of 100.
func WithEnqueueRateLimit(r rate.Limit, burst int) Option {
	return func(a *API) { a.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the logger for request errors.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API for eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:     eng,
		limiter: rate.NewLimiter(50, 100),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Route("/v1", a.RegisterRoutes)
	return r
}

// RegisterRoutes registers the /v1 routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.With(a.rateLimited).Post("/", a.createJob)
		r.Get("/", a.listJobs)
		r.Get("/{jobID}", a.getJob)
	})

	r.Get("/stats", a.stats)

	r.Route("/dlq", func(r chi.Router) {
		r.Get("/", a.listDLQ)
		r.Post("/retry", a.retryAllDLQ)
		r.Post("/{jobID}/retry", a.retryDLQ)
	})
}

// rateLimited rejects requests with 429 once the limiter is exhausted.
func (a *API) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

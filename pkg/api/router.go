package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/api/handlers"
	"github.com/marmos91/dittocache/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /health/backends - Detailed backend health
//   - GET /api/v1/status - Tracker, scheduler and cache status
//   - GET /api/v1/caches/{cache}/keys - Buffered block keys
//   - PUT|GET|DELETE /api/v1/caches/{cache}/blocks/* - Block operations
//   - GET /metrics - Prometheus metrics, when enabled
func NewRouter(rt handlers.Runtime, config APIConfig) http.Handler {
	config.ApplyDefaults()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(rt)
	statusHandler := handlers.NewStatusHandler(rt)
	blockHandler := handlers.NewBlockHandler(rt, config.MaxBlockSize.Int64())

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/backends", healthHandler.Backends)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Get)

		r.Route("/caches/{cache}", func(r chi.Router) {
			r.Get("/keys", blockHandler.Keys)
			r.Put("/blocks/*", blockHandler.Put)
			r.Get("/blocks/*", blockHandler.Get)
			r.Delete("/blocks/*", blockHandler.Delete)
		})
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//
// The request id and client address are attached to the request context so
// handlers logging through the *Ctx helpers carry them.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ctx := logger.WithContext(r.Context(), logger.NewLogContext(requestID, r.RemoteAddr))
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "API request started",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.InfoCtx(ctx, "API request completed",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}

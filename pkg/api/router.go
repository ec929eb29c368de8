package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/api/handlers"
	"github.com/pventura/tidepool/pkg/metrics/prometheus"
)

// NewRouter creates and configures the chi router.
//
// Routes:
//   - GET /        - liveness probe, 200 once the service is serving
//   - GET /health  - readiness probe, 200 only when backing resources are healthy
//   - GET /metrics - Prometheus metrics (when enabled)
func NewRouter(health *handlers.HealthHandler, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, OKResponse(map[string]string{
			"service": "tidepool",
		}))
	})

	r.Get("/health", health.Readiness)

	if metricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	return r
}

// requestLogger logs each request and records the per-status-code counter.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		prometheus.HTTPRequests.WithLabelValues(strconv.Itoa(ww.Status())).Inc()

		logger.Info("Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

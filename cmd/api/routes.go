package main

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/onnwee/matchfeed/internal/api"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/ratelimit"
)

// bucketAPI names the per-viewer request bucket in front of the discovery
// routes. It can be tuned under ratelimit.buckets.api.
const bucketAPI = "api"

var defaultAPIBucket = ratelimit.BucketConfig{Capacity: 120, RefillInterval: time.Minute}

// routerDeps are the handlers and middleware collaborators of the server.
type routerDeps struct {
	Discovery     *api.DiscoveryHandlers
	Messages      *api.MessageHandlers
	Notifications *api.NotificationHandlers // Nil disables the WebSocket route
	Health        *api.HealthHandlers
	Tokens        middleware.TokenValidator
	Limits        ratelimit.Store
	APIBucket     ratelimit.BucketConfig
	Gatherer      prometheus.Gatherer
	Metrics       *middleware.Metrics
	CORSOrigins   []string
	Logger        *slog.Logger
}

// newRouter registers the routes and wraps them in the middleware chain:
// CORS -> Recover -> RequestID -> Tracing -> Logging -> HTTPMetrics -> mux.
func newRouter(d routerDeps) http.Handler {
	if d.APIBucket == (ratelimit.BucketConfig{}) {
		d.APIBucket = defaultAPIBucket
	}

	authenticate := middleware.RequireAuth(d.Tokens, d.Metrics)
	limit := middleware.RateLimiter(d.Limits, middleware.RateLimitOptions{
		Bucket:  bucketAPI,
		Config:  d.APIBucket,
		Key:     middleware.ViewerKeyFunc(),
		Logger:  d.Logger,
		Metrics: d.Metrics,
	})
	protected := func(h http.HandlerFunc) http.Handler {
		return authenticate(limit(h))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/discovery/feed", protected(d.Discovery.Feed))
	mux.Handle("POST /api/v1/discovery/swipe", protected(d.Discovery.Swipe))
	mux.Handle("POST /api/v1/discovery/block", protected(d.Discovery.Block))
	mux.Handle("POST /api/v1/discovery/seen", protected(d.Discovery.Seen))
	mux.Handle("POST /api/v1/discovery/reset", protected(d.Discovery.Reset))
	mux.Handle("POST /api/v1/matches/{id}/messages", protected(d.Messages.Send))

	if d.Notifications != nil {
		mux.Handle("GET /api/v1/notifications/ws", authenticate(http.HandlerFunc(d.Notifications.Subscribe)))
	}

	mux.HandleFunc("GET /health", d.Health.Health)
	mux.HandleFunc("GET /ready", d.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(d.Metrics)(handler)
	handler = middleware.Logging(d.Logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recover(d.Logger)(handler)

	return cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}).Handler(handler)
}

// originChecker accepts WebSocket upgrades from the configured CORS origins.
// Origins match exactly; there are no wildcards.
// Without origins it returns nil, which only allows same-origin upgrades.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// Package gateway exposes the Bolke server surface: a WebSocket endpoint for
// duplex audio sessions and a small JSON API for direct search and checkout.
package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bolke-ai/bolke/internal/browser"
	"github.com/bolke-ai/bolke/internal/config"
	"github.com/bolke-ai/bolke/internal/health"
	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/internal/session"
)

// Gateway routes HTTP and WebSocket traffic to the session manager and the
// search stack.
type Gateway struct {
	sessions   *session.Manager
	aggregator *search.Aggregator
	adapter    *browser.Adapter
	settings   func() config.SearchConfig
	health     *health.Handler
	metrics    *observe.Metrics
}

// Config holds the Gateway's dependencies.
type Config struct {
	Sessions   *session.Manager
	Aggregator *search.Aggregator
	Adapter    *browser.Adapter

	// Settings returns the current search settings. Called per request so a
	// config reload takes effect without a restart.
	Settings func() config.SearchConfig

	// Health serves the liveness and readiness probes. Nil registers a
	// checker-less handler.
	Health *health.Handler

	// Metrics records request telemetry. Nil uses the package default.
	Metrics *observe.Metrics
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	return &Gateway{
		sessions:   cfg.Sessions,
		aggregator: cfg.Aggregator,
		adapter:    cfg.Adapter,
		settings:   cfg.Settings,
		health:     h,
		metrics:    m,
	}
}

// Handler returns the gateway's http.Handler:
//
//	GET  /ws/audio      — duplex audio session over WebSocket
//	POST /api/search    — product search across configured platforms
//	POST /api/checkout  — place an order on one platform
//	GET  /api/health    — legacy liveness alias
//	GET  /healthz       — liveness probe
//	GET  /readyz        — readiness probe
//	GET  /metrics       — Prometheus scrape endpoint
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/audio", g.handleAudio)
	mux.HandleFunc("POST /api/search", g.handleSearch)
	mux.HandleFunc("POST /api/checkout", g.handleCheckout)
	mux.HandleFunc("GET /api/health", g.health.Healthz)
	g.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(g.metrics)(mux)
}

package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/middleware"
)

type RouterOptions struct {
	Checker *health.Checker
	// Gatherer, when set, is served on /metrics.
	Gatherer       prometheus.Gatherer
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// NewRouter mounts the API, health probes, and optionally /metrics.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(slog.Default().With("component", "http")),
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.RequestTimeout),
	)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/search", h.Search)
		v1.GET("/index", h.IndexStats)
		v1.POST("/index/reload", h.Reload)
		v1.GET("/cache/stats", h.CacheStats)
		v1.POST("/cache/invalidate", h.CacheInvalidate)
		v1.GET("/batches", h.Batches)
		v1.GET("/batches/:id", h.Batch)
	}

	checker := opts.Checker
	if checker == nil {
		checker = health.NewChecker()
	}
	r.GET("/health/live", checker.LiveHandler())
	r.GET("/health/ready", checker.ReadyHandler())

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}
	return r
}

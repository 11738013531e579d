// Package httpapi wires the HTTP transport (Gin) to the ingestion pipeline,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and edge rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/availability"
	"github.com/tbourn/go-task-assistant/internal/calendar"
	"github.com/tbourn/go-task-assistant/internal/config"
	"github.com/tbourn/go-task-assistant/internal/http/handlers"
	"github.com/tbourn/go-task-assistant/internal/http/middleware"
	"github.com/tbourn/go-task-assistant/internal/pipeline"
	"github.com/tbourn/go-task-assistant/internal/ratelimit"
	"github.com/tbourn/go-task-assistant/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and assembles the ingestion pipeline behind POST /webhook.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with signature/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (webhook bodies are small by construction)
//  6. Gzip compression for responses
//  7. Metrics
//  8. Edge rate limiter (per client IP, in front of the pipeline)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; the relay signature header is masked by default
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (64 KiB; commands are a few hundred bytes)
	r.Use(limitBody(64 << 10))

	// 6) Compress responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket edge limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) CORS posture. The webhook has no browser clients; CORS matters only
	// for /health and /metrics dashboards.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(buildPipeline(db, cfg))
	r.POST("/webhook", h.Webhook)
}

// buildPipeline assembles the ingestion pipeline from configuration.
func buildPipeline(db *gorm.DB, cfg config.Config) *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		DB:       db,
		Secret:   []byte(cfg.RelaySecret),
		Allowed:  cfg.IsSenderAllowed,
		Limiter:  ratelimit.NewLimiter(db, cfg.RateWindowLimit, cfg.RateWindowSize),
		Executor: &services.Executor{DB: db},
	}

	if cfg.Advisory.Enabled {
		p.Advisor = services.NewOllamaAdvisor(cfg.Advisory.BaseURL, cfg.Advisory.Model, cfg.Advisory.Timeout)
	}
	if cfg.Calendar.Enabled {
		loc, err := time.LoadLocation(cfg.Calendar.Timezone)
		if err != nil {
			loc = time.UTC
		}
		p.Calendar = calendar.NewClient(cfg.Calendar.FreeBusyURL, cfg.Calendar.Token, 15*time.Second)
		p.Windows = availability.Windows{
			Location:  loc,
			WorkStart: availability.ParseHHMM(cfg.Calendar.WorkStart, "09:00"),
			WorkEnd:   availability.ParseHHMM(cfg.Calendar.WorkEnd, "19:00"),
			LateStart: availability.ParseHHMM(cfg.Calendar.LateStart, "21:00"),
			LateEnd:   availability.ParseHHMM(cfg.Calendar.LateEnd, "02:00"),
			MinBlock:  cfg.Calendar.MinBlock,
		}
		p.Horizon = cfg.Calendar.Horizon
	}
	return p
}

// limitBody caps the request body size using http.MaxBytesReader; oversized
// bodies make downstream reads fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

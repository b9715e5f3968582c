// Package httpapi exposes the central decision service over HTTP: batch
// ingestion from edge devices, the audit-log query and liveness.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/rfid-gate/docs"
	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/http/handlers"
	"github.com/tbourn/rfid-gate/internal/http/middleware"
)

const defaultMaxBodyBytes = 1 << 20

// RegisterRoutes installs middleware and endpoints on r.
//
// Order: tracing, request id, access log, recovery, body limit, metrics,
// CORS, security headers. Tracing runs first so the span extracted from an
// edge's traceparent covers the whole request. The rate limiter guards
// /api only; /health and /metrics stay reachable for probes.
func RegisterRoutes(r *gin.Engine, decisions handlers.DecisionService, cfg config.Center) {
	r.HandleMethodNotAllowed = true
	// Edges talk to the center directly; forwarded headers are not trusted
	// for ClientIP (rate-limit fallback key, access log).
	_ = r.SetTrustedProxies(nil)

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
	)

	maxBody := cfg.HTTP.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	r.Use(limitBody(maxBody), middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(decisions)
	r.GET("/health", h.Health)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = "/api"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst, middleware.KeyByReaderOrIP())
	api := r.Group("/api", rl.Handler())
	{
		api.GET("/health", h.Health)
		api.POST("/tags", h.IngestTags)
		api.GET("/events", gzip.Gzip(gzip.DefaultCompression), h.ListEvents)
	}
}

// corsHandlers allows any origin when origins is empty, otherwise echoes
// only the listed ones. Dashboards read /api/events cross-origin; edges
// send X-Reader-ID.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.ReaderIDHeader},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail with
// *http.MaxBytesError, which the ingest handler maps to 413.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

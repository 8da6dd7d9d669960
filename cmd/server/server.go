package main

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"taxihub/internal/broker"
	cidpkg "taxihub/internal/cid"
	"taxihub/internal/coordinator"
)

// Server wires the HTTP surface to the coordinator: the websocket endpoint,
// health, and stats.
type Server struct {
	log     *slog.Logger
	manager *coordinator.Manager
	broker  broker.Broker
	router  *coordinator.Router
}

func NewServer(log *slog.Logger, manager *coordinator.Manager, b broker.Broker, router *coordinator.Router) *Server {
	return &Server{log: log, manager: manager, broker: b, router: router}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.cidMiddleware())
	r.Use(s.otelMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "taxihub",
		})
	})

	r.GET("/api/stats", func(c *gin.Context) {
		stats := s.broker.Stats()
		c.JSON(http.StatusOK, gin.H{
			"connections":   s.manager.Count(),
			"groups":        stats.Groups,
			"subscriptions": stats.Subscriptions,
		})
	})

	r.GET("/ws", s.handleWebSocket)

	return r
}

// cidMiddleware attaches a correlation id to every request: an incoming
// X-TH-CID header is preserved, otherwise a fresh KSUID is generated. The id
// is echoed on the response and stored on the request context.
func (s *Server) cidMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(cidpkg.HeaderName)
		if cid == "" {
			cid = ksuid.New().String()
		}
		c.Writer.Header().Set(cidpkg.HeaderName, cid)
		c.Request = c.Request.WithContext(cidpkg.WithCID(c.Request.Context(), cid))
		c.Next()
	}
}

// otelMiddleware opens a span per request with the basic HTTP attributes and
// the correlation id when one is present on the context.
func (s *Server) otelMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("taxihub/server")
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.Request.URL.Path)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		if cid := cidpkg.CIDFromContext(ctx); cid != "" {
			span.SetAttributes(attribute.String(cidpkg.AttributeName, cid))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.End()
	}
}

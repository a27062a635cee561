// Package server wires the six inbound HTTP routes from spec §6 to the dispatcher, via
// gin, grounded on the teacher's internal/api server setup.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiro-gateway/proxy/internal/dispatcher"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/logging"
	"github.com/kiro-gateway/proxy/internal/registry"
)

// Server bundles the gin engine with the dependencies its handlers need.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	Dispatcher  *dispatcher.Dispatcher
	Models      *kiromodel.ModelMapper
	Registry    *registry.Registry
	ProxyTokens []string
}

// New builds a Server and registers every route.
func New(d *dispatcher.Dispatcher, models *kiromodel.ModelMapper, reg *registry.Registry, proxyTokens []string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusRecovery(), logging.GinLogrusLogger(), metricsMiddleware())

	s := &Server{engine: engine, Dispatcher: d, Models: models, Registry: reg, ProxyTokens: proxyTokens}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	auth := AuthMiddleware(s.ProxyTokens)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", metricsHandler())

	v1 := s.engine.Group("/v1")
	v1.Use(auth)
	{
		v1.POST("/chat/completions", s.chatCompletions)
		v1.POST("/responses", s.responses)
		v1.POST("/messages", s.messages)
		v1.POST("/messages/count_tokens", s.countTokens)
		v1.GET("/models", s.listModels)
		v1.POST("/models/:model", s.generateContentRoute)
	}

	debug := s.engine.Group("/debug")
	debug.Use(auth)
	debug.GET("/logs", s.tailLogs)
}

// generateContentRoute dispatches the Gemini ":generateContent" path-suffixed action,
// since gin's router matches literal path segments rather than the colon-suffixed verb
// Gemini's wire format uses (":generateContent" is part of the model segment, not a
// separate path component).
func (s *Server) generateContentRoute(c *gin.Context) {
	model := c.Param("model")
	const suffix = ":generateContent"
	if len(model) <= len(suffix) || model[len(model)-len(suffix):] != suffix {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown action"}})
		return
	}
	for i := range c.Params {
		if c.Params[i].Key == "model" {
			c.Params[i].Value = model[:len(model)-len(suffix)]
			break
		}
	}
	s.generateContent(c)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

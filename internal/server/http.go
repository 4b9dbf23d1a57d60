// Package server provides the HTTP surface: multi-model chat dispatch,
// streaming, and directory administration.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"multichat/internal/observability"
)

// DefaultBodySizeLimit caps request bodies at 10MB.
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey      string        // Optional: master key for authentication
	MetricsEnabled bool          // Whether to expose the Prometheus metrics endpoint
	BodySizeLimit  int64         // Max request body size in bytes (default: 10MB)
	StreamDelay    time.Duration // Pause between streamed response events
}

// New creates a new HTTP server
func New(handler *Handler, metrics *observability.Metrics, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if cfg == nil {
		cfg = &Config{}
	}
	handler.streamDelay = cfg.StreamDelay

	authSkipPaths := []string{"/health"}
	if cfg.MetricsEnabled {
		authSkipPaths = append(authSkipPaths, "/metrics")
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	bodySizeLimit := cfg.BodySizeLimit
	if bodySizeLimit <= 0 {
		bodySizeLimit = DefaultBodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled && metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// Chat
	e.POST("/v1/chat/multi", handler.MultiChat)
	e.GET("/v1/chat/multi/stream", handler.MultiChatStream)
	e.PUT("/v1/chat/turns/:turn_id/select-response/:response_id", handler.SelectResponse)
	e.GET("/v1/chat/turns/:turn_id/responses", handler.ListTurnResponses)

	// Directory administration
	e.POST("/v1/providers", handler.CreateProvider)
	e.GET("/v1/providers", handler.ListProviders)
	e.GET("/v1/providers/:id", handler.GetProvider)
	e.PUT("/v1/providers/:id", handler.UpdateProvider)
	e.DELETE("/v1/providers/:id", handler.DeleteProvider)
	e.POST("/v1/providers/:id/keys", handler.CreateAPIKey)
	e.GET("/v1/providers/:id/keys", handler.ListAPIKeys)
	e.DELETE("/v1/providers/:id/keys/:key_id", handler.DeleteAPIKey)

	e.POST("/v1/models", handler.CreateModel)
	e.GET("/v1/models", handler.ListModels)
	e.GET("/v1/models/:id", handler.GetModel)
	e.PUT("/v1/models/:id", handler.UpdateModel)
	e.DELETE("/v1/models/:id", handler.DeleteModel)

	e.POST("/v1/implementations", handler.CreateImplementation)
	e.GET("/v1/implementations", handler.ListImplementations)
	e.GET("/v1/implementations/:id", handler.GetImplementation)
	e.PUT("/v1/implementations/:id", handler.UpdateImplementation)
	e.DELETE("/v1/implementations/:id", handler.DeleteImplementation)

	// Conversations
	e.POST("/v1/conversations", handler.CreateConversation)
	e.GET("/v1/conversations", handler.ListConversations)
	e.GET("/v1/conversations/:id", handler.GetConversation)
	e.PUT("/v1/conversations/:id", handler.UpdateConversation)
	e.DELETE("/v1/conversations/:id", handler.DeleteConversation)
	e.GET("/v1/conversations/:id/turns", handler.ListTurns)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

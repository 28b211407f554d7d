// Package api serves the operator API: trigger digests, inspect what
// would be nudged, and manage snoozes without going through Slack.
package api

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/pr-nudge/internal/metrics"
	"github.com/p-blackswan/pr-nudge/internal/requestid"
)

// ServerConfig holds configuration for the operator API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Server is the operator API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures the operator API server.
func NewServer(
	cfg ServerConfig,
	handlers *Handlers,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "api_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(handlers, metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		reqID := c.Get(requestid.Header)
		if reqID == "" {
			ctx, reqID = requestid.New(ctx)
		} else {
			ctx = requestid.WithRequestID(ctx, reqID)
		}
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit log for every non-probe request.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("operator api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, metricsCollector *metrics.Metrics) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if metricsCollector != nil {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			return c.SendString("# Prometheus metrics are served by the main HTTP server\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Post("/digest", requireRole(RoleOperator), h.TriggerDigest)
	v1.Get("/stale", h.GetStale)

	v1.Get("/snoozes", h.ListSnoozes)
	v1.Post("/snoozes/prune", requireRole(RoleOperator), h.PruneSnoozes)
	v1.Put("/snoozes/:owner/:repo/:number", requireRole(RoleOperator), h.PutSnooze)
	v1.Delete("/snoozes/:owner/:repo/:number", requireRole(RoleOperator), h.DeleteSnooze)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("operator API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("operator API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}

package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/wordlens/wordlens/internal/config"
	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/middleware"
	"github.com/wordlens/wordlens/internal/observability"
	"github.com/wordlens/wordlens/internal/progress"
	"github.com/wordlens/wordlens/internal/storage"
)

// Server represents the HTTP server
type Server struct {
	app             *fiber.App
	config          *config.Config
	tracer          *observability.Tracer
	metrics         *observability.Metrics
	registry        *engine.Registry
	spool           *storage.Spool
	broadcaster     *progress.Broadcaster
	progressHandler *progress.Handler
	ocrHandler      *OCRHandler
	healthHandler   *HealthHandler
}

// Deps carries the already-wired services the server exposes over HTTP.
type Deps struct {
	Registry    *engine.Registry
	Processor   Processor
	Spool       *storage.Spool
	Broadcaster *progress.Broadcaster
	Tracer      *observability.Tracer
	Metrics     *observability.Metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "WordLens",
		AppName:               "WordLens v0.1.0",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
		Prefork:               false,
	})

	s := &Server{
		app:         app,
		config:      cfg,
		tracer:      deps.Tracer,
		metrics:     deps.Metrics,
		registry:    deps.Registry,
		spool:       deps.Spool,
		broadcaster: deps.Broadcaster,
	}

	s.ocrHandler = NewOCRHandler(deps.Processor, deps.Spool, cfg, deps.Metrics)
	if deps.Broadcaster != nil {
		s.ocrHandler.SetSinkFactory(func(jobID string) engine.ProgressSink {
			return deps.Broadcaster.Sink(jobID)
		})
	}
	s.healthHandler = NewHealthHandler(deps.Registry, deps.Spool, cfg.Engines.Primary)
	if cfg.Progress.Enabled && deps.Broadcaster != nil {
		s.progressHandler = progress.NewHandler(deps.Broadcaster, cfg.Progress.PingInterval)
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares registers the global middleware chain.
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first, the ID doubles as the job ID
	s.app.Use(requestid.New())

	// OpenTelemetry tracing middleware
	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:     true,
			ServiceName: s.config.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/metrics"},
		}))
	}

	// Logger middleware
	if s.config.Debug {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
		}))
	}

	// Recover middleware - catch panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	// CORS middleware
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,X-Request-ID",
	}))

	// Prometheus HTTP metrics
	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthHandler.Handle)

	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")
	v1.Post("/ocr", s.ocrHandler.HandleExtract)

	if s.progressHandler != nil {
		s.app.Get("/ws/progress", s.progressHandler.HandleWebSocket)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.broadcaster != nil {
		log.Info().Msg("Closing progress WebSocket connections")
		s.broadcaster.Shutdown()
	}

	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500 status code
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Log error
	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	// Return JSON error response
	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

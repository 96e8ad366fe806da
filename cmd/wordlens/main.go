package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wordlens/wordlens/internal/api"
	"github.com/wordlens/wordlens/internal/config"
	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/imaging"
	"github.com/wordlens/wordlens/internal/observability"
	"github.com/wordlens/wordlens/internal/progress"
	"github.com/wordlens/wordlens/internal/pubsub"
	"github.com/wordlens/wordlens/internal/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	warmPrimary = flag.Bool("warm", false, "Initialize the primary engine at boot instead of lazily")
)

func main() {
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("WordLens %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting WordLens")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// libvips powers the pre-submission downscale
	imaging.Startup()
	defer imaging.Shutdown()

	// Initialize the upload spool
	spool, err := storage.NewSpool(cfg.Storage.SpoolPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize upload spool")
	}

	// Register engine adapters
	registry := engine.NewRegistry()
	registry.Register(config.EngineVLM, engine.NewVLMEngine(engine.VLMConfig{
		APIKey:            cfg.Engines.VLM.APIKey,
		Models:            cfg.Engines.VLM.Models,
		MaxImageDimension: cfg.Engines.VLM.MaxImageDimension,
	}, imaging.NewResizer()))
	registry.Register(config.EngineTesseract, engine.NewTesseractEngine(engine.TesseractConfig{
		Languages: cfg.Engines.Tesseract.Languages,
	}))
	defer registry.Close()

	metrics := observability.NewMetrics()

	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateUptime(startTime)
		}
	}()

	orchestrator := engine.NewOrchestrator(registry, engine.OrchestratorConfig{
		Primary:   cfg.Engines.Primary,
		Secondary: cfg.Engines.Secondary,
		Deadlines: map[string]time.Duration{
			config.EngineVLM:       cfg.Engines.VLM.Deadline,
			config.EngineTesseract: cfg.Engines.Tesseract.Deadline,
		},
	})
	orchestrator.SetAttemptObserver(func(engineName string, outcome engine.Outcome, duration time.Duration) {
		metrics.RecordAttempt(engineName, outcome.String(), duration)
	})
	orchestrator.SetFallbackObserver(metrics.RecordFallback)

	// Optionally warm the primary at boot; extraction otherwise initializes
	// it lazily on the first submission.
	if *warmPrimary {
		if err := registry.Warm(context.Background(), cfg.Engines.Primary); err != nil {
			log.Warn().Err(err).Str("engine", cfg.Engines.Primary).Msg("Primary engine warm-up failed")
		}
	}

	// Progress broadcasting
	var broadcaster *progress.Broadcaster
	if cfg.Progress.Enabled {
		broadcaster = progress.NewBroadcaster(context.Background())
		broadcaster.SetMetrics(metrics)

		ps, err := pubsub.New(cfg.Scaling.Backend, cfg.Scaling.RedisURL, cfg.Progress.ChannelBufferSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize pub/sub backend")
		}
		broadcaster.SetPubSub(ps)
	}

	// OpenTelemetry tracing
	tracer, err := observability.NewTracer(context.Background(), cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	// Initialize API server
	server := api.NewServer(cfg, api.Deps{
		Registry:    registry,
		Processor:   orchestrator,
		Spool:       spool,
		Broadcaster: broadcaster,
		Tracer:      tracer,
		Metrics:     metrics,
	})

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting WordLens server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/chat/api"
	"github.com/consilio/consilio/internal/chat/streaming"
	"github.com/consilio/consilio/internal/common/config"
	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/conversation/repository"
	"github.com/consilio/consilio/internal/events/bus"
	"github.com/consilio/consilio/internal/extraction"
	"github.com/consilio/consilio/internal/generation"
	"github.com/consilio/consilio/internal/orchestrator"
	"github.com/consilio/consilio/internal/persona"
	"github.com/consilio/consilio/internal/workflow"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Companion server...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect to NATS event bus; run without one when no URL is set
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus")
	} else {
		eventBus = bus.NewNoopEventBus()
		log.Info("No NATS URL configured, events disabled")
	}
	defer eventBus.Close()

	// 5. Open the conversation store
	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to open conversation store", zap.Error(err))
	}
	defer repo.Close()
	log.Info("Opened conversation store", zap.String("driver", cfg.Database.Driver))

	// 6. Load persona and workflow registries
	personas := persona.NewRegistry(log)
	personas.LoadDefaults()
	workflows := workflow.NewRegistry(log)
	workflows.LoadDefaults()
	log.Info("Loaded registries",
		zap.Int("personas", len(personas.List())),
		zap.Int("workflows", len(workflows.List())))

	// 7. Initialize the generation service
	generator, err := generation.NewOpenAIGenerator(cfg.OpenAI, log)
	if err != nil {
		log.Fatal("Failed to initialize generator", zap.Error(err))
	}

	// 8. Initialize the orchestrator
	orch := orchestrator.New(repo, workflows, personas, generator, eventBus, log)

	// 9. Initialize the streaming hub
	hub, err := streaming.NewHub(eventBus, log)
	if err != nil {
		log.Fatal("Failed to initialize streaming hub", zap.Error(err))
	}

	// 10. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.Recovery(log))
	router.Use(api.RequestLogger(log))
	router.Use(api.ErrorHandler(log))
	router.Use(api.CORS())

	// 11. Register API routes
	extractor := extraction.NewTextExtractor()
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, repo, workflows, personas, orch, extractor, eventBus, hub, log)

	// Health check endpoint at root level
	handler := api.NewHandler(repo, workflows, personas, orch, extractor, eventBus, log)
	router.GET("/health", handler.HealthCheck)

	// 12. Create HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8084
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 13. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 14. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Companion server...")

	// 15. Graceful shutdown
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Disconnect streaming clients
	hub.StopAll()

	log.Info("Companion server stopped")
}

// openRepository selects the conversation store backend from configuration
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.Repository, error) {
	switch cfg.Driver {
	case "", "memory":
		return repository.NewMemoryRepository(), nil
	case "sqlite":
		return repository.NewSQLiteRepository(cfg.DSN)
	case "postgres":
		return repository.NewPostgresRepository(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

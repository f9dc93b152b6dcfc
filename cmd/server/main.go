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
	"go.uber.org/zap/zapcore"

	"github.com/hjemla/easeewatch/internal/api/easee"
	"github.com/hjemla/easeewatch/internal/api/handlers"
	"github.com/hjemla/easeewatch/internal/cache"
	"github.com/hjemla/easeewatch/internal/config"
	"github.com/hjemla/easeewatch/internal/credentials"
	"github.com/hjemla/easeewatch/internal/repository"
	"github.com/hjemla/easeewatch/internal/service"
	"github.com/hjemla/easeewatch/internal/session"
	"github.com/hjemla/easeewatch/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting easeewatch", zap.String("port", cfg.ServerPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	sampleRepo := repository.NewSampleRepository(db)

	// Easee API client and session
	easeeClient := easee.NewClient(cfg.EaseeAPIHost, cfg.HTTPTimeout)
	sessionManager := session.NewManager(logger, easeeClient, credentialProvider(cfg))

	// Fetch pipeline and TTL cache
	telemetry := service.NewTelemetryService(logger, easeeClient, sessionManager)
	telemetryCache := cache.New(logger, telemetry.FetchAll)

	// WebSocket hub
	wsHub := ws.NewHub(logger)
	wsHub.SetSnapshotProvider(func() *ws.Snapshot {
		states, fetchedAt, ok := telemetryCache.Cached()
		if !ok {
			return nil
		}
		return &ws.Snapshot{Chargers: states, FetchedAt: fetchedAt}
	})
	go wsHub.Run()

	// Poll-driven exporter
	exporter := service.NewExporter(logger, telemetry, sampleRepo, wsHub, cfg.PollInterval)
	exporter.Start(ctx)

	// HTTP surface
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewHandler(logger, telemetryCache, cfg.CacheTTL, sampleRepo, sessionManager, wsHub)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	exporter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// credentialProvider selects the credential source: a JSON file when
// configured, otherwise the env pair.
func credentialProvider(cfg *config.Config) credentials.Provider {
	if cfg.CredentialsFile != "" {
		return credentials.NewFileProvider(cfg.CredentialsFile)
	}
	return credentials.NewStaticProvider(cfg.EaseeUsername, cfg.EaseePassword)
}

// initLogger builds the process logger.
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

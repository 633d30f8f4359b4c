// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SocialGouv/champollion-go/internal/application/container"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/kv"
	"github.com/SocialGouv/champollion-go/internal/presentation/http/server"
	"github.com/SocialGouv/champollion-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// NewLogger builds the channeled logger described by cfg.
func NewLogger(cfg *config.Config) (*logging.ChanneledLogger, error) {
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.JSONFormat = cfg.LogJSON
	loggerConfig.OutputToFile = cfg.LogToFile
	loggerConfig.LogDirectory = cfg.LogDirectory
	loggerConfig.DefaultLevel = logging.ParseLevel(cfg.LogLevel)
	return logging.NewChanneledLogger(loggerConfig)
}

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal is received.
func Initialize(cfg *config.Config) error {
	setupLogging(cfg)

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `
  champollion: synthèse établissement
` + "\033[0m")

	// Step 1: Initialize logging
	log.Println("Initializing logging...")
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "level", cfg.LogLevel, "json", cfg.LogJSON)

	// Step 2: Open correction store
	logger.Startup().Info("Opening correction store...", "backend", cfg.KVBackend)
	storeStart := time.Now()
	store, err := kv.New(ctx, cfg, logger)
	if err != nil {
		logger.LogStartupPhase("correction_store", time.Since(storeStart), false)
		return fmt.Errorf("failed to open correction store: %w", err)
	}
	logger.LogStartupPhase("correction_store", time.Since(storeStart), true)

	// Step 3: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(cfg, logger, store)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create container: %w", err)
	}
	logger.Startup().Info("Dependency injection container created", "apiUrl", cfg.APIURL)

	// Step 4: Start load janitor
	logger.Startup().Info("Starting load janitor...")
	go appContainer.Janitor.Start(ctx)

	// Step 5: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	startServerTime := time.Now()
	httpServer := server.New(appContainer)
	logger.Startup().Info("HTTP server initialized", "port", cfg.Port, "duration", time.Since(startServerTime))

	// Step 6: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			serverErr <- err
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", cfg.Port)

	// Wait for shutdown signal
	var runErr error
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case runErr = <-serverErr:
		logger.Shutdown().Error("HTTP server stopped unexpectedly, shutting down...")
	}

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	// Stop server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Cancel in-flight loads
	canceled := appContainer.LoadRegistry.CancelAll()
	logger.Shutdown().Info("In-flight synthesis loads canceled", "count", canceled)

	// Close correction store
	logger.Shutdown().Info("Closing correction store...")
	if err := store.Close(); err != nil {
		logger.Shutdown().Error("Error closing correction store", "error", err.Error())
	} else {
		logger.Shutdown().Info("Correction store closed successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return runErr
}

// setupLogging configures application logging
func setupLogging(cfg *config.Config) {
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

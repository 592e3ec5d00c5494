package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dailyalchemy/internal/app"
	"dailyalchemy/internal/config"
	"dailyalchemy/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.LogMode, logger.Options{HashSalt: cfg.LogHashSalt})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to start", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		appLogger.Error("Server stopped with error", "error", err.Error())
		a.Close()
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/api"
	"github.com/danghamo/isoboard/pkg/config"
)

func main() {
	// Initialize configuration and logger
	cfg, log, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure logger is flushed on exit
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting isoboard server",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.Int("board_width", cfg.Board.Width),
		zap.Int("board_height", cfg.Board.Height),
	)

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := apiServer.Start(ctx); err != nil {
		log.Error("Server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server gracefully stopped")
}

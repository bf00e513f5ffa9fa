// camflowd is the live-feed relay. Pipelines push per-frame detection
// and per-bucket events to /ingest; dashboards subscribe on /live.
// The relay is stateless and outside the durability contract.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/runger/camflow/internal/config"
	"github.com/runger/camflow/internal/live"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "camflowd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up logging
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})
	logger := slog.New(logHandler)

	server, err := live.NewServer(&live.ServerConfig{
		Addr:   cfg.Live.ListenAddr,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the relay (blocks until shutdown)
	return server.Run(ctx)
}

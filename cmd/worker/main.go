package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"docchat/internal/activities"
	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if cfg.TemporalAddress == "" {
		logger.Error("DOCCHAT_TEMPORAL_ADDRESS is required for the worker")
		os.Exit(1)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: log.NewStructuredLogger(logger)})
	if err != nil {
		logger.Error("temporal dial failed", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(a.Embedder, a.Store, cfg.DataOutRoot, logger.With("component", "activities")))

	logger.Info("docchat worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue,
		"embed_providers", cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

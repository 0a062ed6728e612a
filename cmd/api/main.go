package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"

	"docchat/internal/api"
	"docchat/internal/app"
	"docchat/internal/auth"
	"docchat/internal/config"
	"docchat/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := app.Build(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.SupabaseAudience)
	if err != nil {
		log.Error("auth config", "err", err)
		os.Exit(1)
	}

	deps := api.Deps{
		Chat:     a.Chat,
		Sessions: a.Chats,
		Files:    a.Files,
		Embedder: a.Embedder,
		Auth:     verifier,
		DB:       a.DB,
		Metrics:  a.Metrics,
		Logger:   log,
	}
	if cfg.TemporalAddress != "" {
		tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			log.Error("temporal dial failed", "addr", cfg.TemporalAddress, "err", err)
			os.Exit(1)
		}
		defer tc.Close()
		deps.Scheduler = workflows.NewScheduler(tc, cfg.TemporalTaskQueue)
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("docchat api listening", "addr", cfg.APIAddr, "llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders, "temporal", cfg.TemporalAddress != "", "redis_lock", cfg.RedisURL != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

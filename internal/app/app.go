package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/embedstore"
	"docchat/internal/ingest"
	"docchat/internal/lock"
	"docchat/internal/metrics"
	"docchat/internal/providers"
	"docchat/internal/rag"
	"docchat/internal/retriever"
	"docchat/internal/storage"
	"docchat/internal/vector"
)

// App holds the wired pipeline shared by the api server, the worker and docctl.
type App struct {
	Cfg       config.Config
	Log       *slog.Logger
	DB        *storage.DB
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Providers *providers.Manager
	Files     *storage.FileRepo
	Chats     *storage.ChatRepo
	Audit     *storage.LLMAuditRepo
	Store     *vector.PGStore
	Ingester  *ingest.Ingester
	Embedder  *embedstore.Adapter
	Retriever *retriever.Retriever
	RAG       *rag.Orchestrator
	Chat      *chat.Service
}

func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	a := &App{
		Cfg:       cfg,
		Log:       log,
		DB:        db,
		Metrics:   metrics.New(),
		Providers: pm,
		Files:     storage.NewFileRepo(db),
		Chats:     storage.NewChatRepo(db),
		Audit:     storage.NewLLMAuditRepo(db),
		Store:     vector.NewPGStore(db),
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("namespace lock: %w", err)
		}
		a.Redis = rdb
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
	}

	base, ref := pm.Embedder()
	embedder := providers.NewRateLimitedEmbedder(base, cfg.EmbedRPS, max(1, int(cfg.EmbedRPS)))
	log.Info("embedding provider", "provider", ref.Raw, "dim", cfg.EmbedDim, "rps", cfg.EmbedRPS)

	a.Ingester = ingest.New(cfg, a.Files, nil)
	a.Embedder = embedstore.New(cfg, embedstore.Deps{
		Store:    a.Store,
		Ingestor: a.Ingester,
		Embedder: embedder,
		Locker:   locker,
		Audit:    a.Audit,
		Metrics:  a.Metrics,
		Logger:   log.With("component", "embedstore"),
	})
	a.Retriever = retriever.New(cfg, a.Store, embedder)
	a.RAG = rag.New(cfg, a.Embedder, a.Retriever, a.Metrics, log.With("component", "rag"))
	a.Chat = chat.New(cfg, chat.Deps{
		Context: a.RAG,
		Models:  pm,
		Store:   a.Chats,
		Audit:   a.Audit,
		Metrics: a.Metrics,
		Logger:  log.With("component", "chat"),
	})
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.DB.Close()
}

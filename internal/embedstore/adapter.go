package embedstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docchat/internal/config"
	"docchat/internal/lock"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/util"
	"docchat/internal/vector"
)

// ErrClaimLost means another owner took over the namespace claim mid-ingestion.
var ErrClaimLost = errors.New("namespace claim lost")

type Ingestor interface {
	Ingest(ctx context.Context, documentID string) ([]models.Chunk, error)
}

// CallRecorder persists an audit row per provider call.
type CallRecorder interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

// Handle is bound to a namespace whose status is complete.
type Handle struct {
	Namespace  string `json:"namespace"`
	ChunkCount int    `json:"chunk_count"`
	// Created is true when this call performed the ingestion.
	Created bool `json:"created"`
}

type Adapter struct {
	store      vector.Store
	ingestor   Ingestor
	embedder   providers.EmbeddingProvider
	locker     lock.Locker
	audit      CallRecorder
	metrics    *metrics.Metrics
	log        *slog.Logger
	dim        int
	batchSize  int
	staleAfter time.Duration
	poll       time.Duration
}

type Deps struct {
	Store    vector.Store
	Ingestor Ingestor
	Embedder providers.EmbeddingProvider
	Locker   lock.Locker
	Audit    CallRecorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func New(cfg config.Config, d Deps) *Adapter {
	if d.Locker == nil {
		d.Locker = lock.NewMemoryLocker()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	batch := cfg.EmbedBatchSize
	if batch <= 0 {
		batch = 64
	}
	stale := cfg.LockTTL
	if stale <= 0 {
		stale = 2 * time.Minute
	}
	return &Adapter{
		store:      d.Store,
		ingestor:   d.Ingestor,
		embedder:   d.Embedder,
		locker:     d.Locker,
		audit:      d.Audit,
		metrics:    d.Metrics,
		log:        d.Logger,
		dim:        cfg.EmbedDim,
		batchSize:  batch,
		staleAfter: stale,
		poll:       250 * time.Millisecond,
	}
}

// EnsureEmbedded guarantees the document's namespace is complete, ingesting and
// embedding it at most once. Failures are not retried here.
func (a *Adapter) EnsureEmbedded(ctx context.Context, documentID string) (Handle, error) {
	ns, err := a.store.Namespace(ctx, documentID)
	if err != nil {
		return Handle{}, fmt.Errorf("namespace status %s: %w", documentID, err)
	}
	if ns.Status == models.NamespaceComplete {
		a.metrics.NamespaceLookup(true)
		return Handle{Namespace: documentID, ChunkCount: ns.ChunkCount}, nil
	}

	release, err := a.locker.Acquire(ctx, "ns:"+documentID)
	if err != nil {
		return Handle{}, fmt.Errorf("lock namespace %s: %w", documentID, err)
	}
	defer release()

	ns, token, err := a.claim(ctx, documentID)
	if err != nil {
		return Handle{}, err
	}
	if token == "" {
		a.metrics.NamespaceLookup(true)
		return Handle{Namespace: documentID, ChunkCount: ns.ChunkCount}, nil
	}
	a.metrics.NamespaceLookup(false)

	n, err := a.ingest(ctx, documentID, token)
	if err != nil {
		a.rollback(ctx, documentID, token, err)
		a.metrics.Ingestion("failed", 0)
		return Handle{}, err
	}
	a.metrics.Ingestion("complete", n)
	a.log.Info("namespace embedded", "doc_id", documentID, "chunks", n)
	return Handle{Namespace: documentID, ChunkCount: n, Created: true}, nil
}

// claim waits until this caller owns the namespace or another owner finished it.
// The returned token is empty in the latter case.
func (a *Adapter) claim(ctx context.Context, documentID string) (models.Namespace, string, error) {
	for {
		ns, err := a.store.Namespace(ctx, documentID)
		if err != nil {
			return ns, "", fmt.Errorf("namespace status %s: %w", documentID, err)
		}
		if ns.Status == models.NamespaceComplete {
			return ns, "", nil
		}
		token, ok, err := a.store.ClaimNamespace(ctx, documentID, a.staleAfter)
		if err != nil {
			return ns, "", fmt.Errorf("claim namespace %s: %w", documentID, err)
		}
		if ok {
			return ns, token, nil
		}
		// Another process holds a fresh pending claim.
		select {
		case <-ctx.Done():
			return ns, "", fmt.Errorf("wait for namespace %s: %w", documentID, ctx.Err())
		case <-time.After(a.poll):
		}
	}
}

func (a *Adapter) ingest(ctx context.Context, documentID, token string) (int, error) {
	chunks, err := a.ingestor.Ingest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	vectors, err := a.embedChunks(ctx, documentID, token, chunks)
	if errors.Is(err, ErrClaimLost) {
		return 0, fmt.Errorf("%w: %s: %w", util.ErrStoreWrite, documentID, err)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", util.ErrEmbedding, documentID, err)
	}
	records := make([]vector.Record, 0, len(chunks))
	for i, c := range chunks {
		records = append(records, vector.Record{Chunk: c, Embedding: vectors[i]})
	}
	if err := a.renew(ctx, documentID, token); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", util.ErrStoreWrite, documentID, err)
	}
	// Vectors left by an earlier failed or abandoned pass must not survive.
	if err := a.store.DeleteNamespace(ctx, documentID); err != nil {
		return 0, fmt.Errorf("%w: %s: clear namespace: %w", util.ErrStoreWrite, documentID, err)
	}
	if err := a.store.Upsert(ctx, documentID, records); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", util.ErrStoreWrite, documentID, err)
	}
	released, err := a.store.ReleaseClaim(ctx, documentID, token, models.NamespaceComplete, len(records), "")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: mark complete: %w", util.ErrStoreWrite, documentID, err)
	}
	if !released {
		return 0, fmt.Errorf("%w: %s: mark complete: %w", util.ErrStoreWrite, documentID, ErrClaimLost)
	}
	return len(records), nil
}

// renew keeps the claim fresh across long ingestions.
func (a *Adapter) renew(ctx context.Context, documentID, token string) error {
	ok, err := a.store.RenewClaim(ctx, documentID, token)
	if err != nil {
		return fmt.Errorf("renew claim: %w", err)
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

func (a *Adapter) embedChunks(ctx context.Context, documentID, token string, chunks []models.Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += a.batchSize {
		end := start + a.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, c.Text)
		}
		vecs, info, err := a.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "embed_document",
			Inputs:    inputs,
			Dimension: a.dim,
		})
		a.record(ctx, documentID, info, err)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(inputs) {
			return nil, fmt.Errorf("provider %s returned %d vectors for %d chunks", info.Name, len(vecs), len(inputs))
		}
		for _, v := range vecs {
			if a.dim > 0 && len(v) != a.dim {
				return nil, fmt.Errorf("provider %s returned %d dims, want %d", info.Name, len(v), a.dim)
			}
		}
		out = append(out, vecs...)
		if err := a.renew(ctx, documentID, token); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rollback removes partial vectors and marks the namespace failed so the next
// call re-ingests it. It runs detached from ctx, which may already be cancelled.
// A caller whose claim was taken over leaves the namespace to the new owner.
func (a *Adapter) rollback(ctx context.Context, documentID, token string, cause error) {
	a.log.Warn("namespace ingestion failed", "doc_id", documentID, "err", cause)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.renew(rctx, documentID, token); err != nil {
		a.log.Warn("namespace rollback skipped", "doc_id", documentID, "err", err)
		return
	}
	if err := a.store.DeleteNamespace(rctx, documentID); err != nil {
		a.log.Error("namespace rollback failed", "doc_id", documentID, "err", err)
	}
	if _, err := a.store.ReleaseClaim(rctx, documentID, token, models.NamespaceFailed, 0, cause.Error()); err != nil {
		a.log.Error("mark namespace failed", "doc_id", documentID, "err", err)
	}
}

func (a *Adapter) record(ctx context.Context, documentID string, info providers.ProviderInfo, callErr error) {
	if a.audit == nil {
		return
	}
	rec := storage.LLMCallRecord{
		Operation:    "embed_document",
		DocumentID:   documentID,
		ProviderName: info.Name,
		Model:        info.Model,
		Status:       "ok",
	}
	if callErr != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	if err := a.audit.Insert(ctx, rec); err != nil {
		a.log.Warn("llm audit insert failed", "doc_id", documentID, "err", err)
	}
}

// Status reports the namespace marker without side effects.
func (a *Adapter) Status(ctx context.Context, documentID string) (models.Namespace, error) {
	return a.store.Namespace(ctx, documentID)
}

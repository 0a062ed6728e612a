package vector

import (
	"context"
	"time"

	"docchat/internal/models"
	"docchat/internal/storage"
)

// PGStore keeps vectors in Postgres with the pgvector extension.
type PGStore struct {
	chunks     *storage.ChunkRepo
	namespaces *storage.NamespaceRepo
	searcher   *Searcher
}

func NewPGStore(db *storage.DB) *PGStore {
	return &PGStore{
		chunks:     storage.NewChunkRepo(db),
		namespaces: storage.NewNamespaceRepo(db),
		searcher:   NewSearcher(db.Pool),
	}
}

func (p *PGStore) Namespace(ctx context.Context, namespace string) (models.Namespace, error) {
	return p.namespaces.Get(ctx, namespace)
}

func (p *PGStore) ClaimNamespace(ctx context.Context, namespace string, staleAfter time.Duration) (string, bool, error) {
	return p.namespaces.Claim(ctx, namespace, staleAfter)
}

func (p *PGStore) RenewClaim(ctx context.Context, namespace, token string) (bool, error) {
	return p.namespaces.Renew(ctx, namespace, token)
}

func (p *PGStore) ReleaseClaim(ctx context.Context, namespace, token string, status models.NamespaceStatus, chunkCount int, failReason string) (bool, error) {
	return p.namespaces.Release(ctx, namespace, token, status, chunkCount, failReason)
}

func (p *PGStore) SetNamespaceStatus(ctx context.Context, namespace string, status models.NamespaceStatus, chunkCount int, failReason string) error {
	return p.namespaces.SetStatus(ctx, namespace, status, chunkCount, failReason)
}

func (p *PGStore) ListNamespaces(ctx context.Context, status models.NamespaceStatus, limit int) ([]models.Namespace, error) {
	return p.namespaces.ListByStatus(ctx, status, limit)
}

func (p *PGStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	rows := make([]storage.ChunkRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, storage.ChunkRecord{Chunk: r.Chunk, Embedding: r.Embedding})
	}
	return p.chunks.UpsertChunks(ctx, namespace, rows)
}

func (p *PGStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := p.chunks.DeleteNamespace(ctx, namespace)
	return err
}

func (p *PGStore) Search(ctx context.Context, namespace string, query []float32, topK int) ([]models.ChunkMatch, error) {
	return p.searcher.SearchChunks(ctx, namespace, query, topK)
}

package vector

import (
	"context"
	"time"

	"docchat/internal/models"
)

type Record struct {
	Chunk     models.Chunk
	Embedding []float32
}

// Store is a namespace-scoped vector index plus the per-namespace completion marker.
type Store interface {
	Namespace(ctx context.Context, namespace string) (models.Namespace, error)
	// ClaimNamespace marks the namespace pending if it is absent, failed, or pending
	// without renewal for longer than staleAfter. The returned token identifies the
	// claim; ok is false when another caller holds a fresh claim.
	ClaimNamespace(ctx context.Context, namespace string, staleAfter time.Duration) (token string, ok bool, err error)
	// RenewClaim refreshes a pending claim. It reports false once the claim was
	// taken over or finished by someone else.
	RenewClaim(ctx context.Context, namespace, token string) (bool, error)
	// ReleaseClaim moves a namespace pending under token to status. It reports
	// false, writing nothing, when token no longer holds the claim.
	ReleaseClaim(ctx context.Context, namespace, token string, status models.NamespaceStatus, chunkCount int, failReason string) (bool, error)
	SetNamespaceStatus(ctx context.Context, namespace string, status models.NamespaceStatus, chunkCount int, failReason string) error
	ListNamespaces(ctx context.Context, status models.NamespaceStatus, limit int) ([]models.Namespace, error)

	Upsert(ctx context.Context, namespace string, records []Record) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Search(ctx context.Context, namespace string, query []float32, topK int) ([]models.ChunkMatch, error)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"docchat/internal/models"
)

// NamespaceRepo stores the per-namespace completion marker.
type NamespaceRepo struct {
	db *DB
}

func NewNamespaceRepo(db *DB) *NamespaceRepo {
	return &NamespaceRepo{db: db}
}

// Get returns the namespace row; a namespace that was never claimed comes back
// with status models.NamespaceAbsent and no error.
func (r *NamespaceRepo) Get(ctx context.Context, namespace string) (models.Namespace, error) {
	ns := models.Namespace{Name: namespace}
	err := r.db.Pool.QueryRow(ctx, `
SELECT status, chunk_count, COALESCE(fail_reason,''), updated_at
FROM vector_namespaces
WHERE namespace=$1`, namespace).Scan(&ns.Status, &ns.ChunkCount, &ns.FailReason, &ns.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		ns.Status = models.NamespaceAbsent
		return ns, nil
	}
	if err != nil {
		return models.Namespace{}, fmt.Errorf("get namespace status: %w", err)
	}
	return ns, nil
}

// Claim is a conditional create-if-absent: it marks the namespace pending when it
// is absent, failed, or pending but not renewed for staleAfter. On success it
// returns the token that identifies this claim.
func (r *NamespaceRepo) Claim(ctx context.Context, namespace string, staleAfter time.Duration) (string, bool, error) {
	token := uuid.NewString()
	tag, err := r.db.Pool.Exec(ctx, `
INSERT INTO vector_namespaces (namespace, status, chunk_count, claim_token, updated_at)
VALUES ($1, 'pending', 0, $3, NOW())
ON CONFLICT (namespace)
DO UPDATE SET status='pending', chunk_count=0, fail_reason=NULL, claim_token=EXCLUDED.claim_token, updated_at=NOW()
WHERE vector_namespaces.status='failed'
   OR (vector_namespaces.status='pending' AND vector_namespaces.updated_at < NOW() - make_interval(secs => $2))`,
		namespace, staleAfter.Seconds(), token)
	if err != nil {
		return "", false, fmt.Errorf("claim namespace: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return "", false, nil
	}
	return token, true, nil
}

// Renew pushes out the staleness deadline of a claim still held under token.
func (r *NamespaceRepo) Renew(ctx context.Context, namespace, token string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE vector_namespaces SET updated_at=NOW()
WHERE namespace=$1 AND status='pending' AND claim_token=$2`, namespace, token)
	if err != nil {
		return false, fmt.Errorf("renew namespace claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release finishes a claim held under token. Nothing is written when the claim
// was taken over.
func (r *NamespaceRepo) Release(ctx context.Context, namespace, token string, status models.NamespaceStatus, chunkCount int, failReason string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE vector_namespaces
SET status=$3, chunk_count=$4, fail_reason=NULLIF($5,''), claim_token=NULL, updated_at=NOW()
WHERE namespace=$1 AND status='pending' AND claim_token=$2`,
		namespace, token, string(status), chunkCount, failReason)
	if err != nil {
		return false, fmt.Errorf("release namespace claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus writes the marker unconditionally and drops any claim.
func (r *NamespaceRepo) SetStatus(ctx context.Context, namespace string, status models.NamespaceStatus, chunkCount int, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO vector_namespaces (namespace, status, chunk_count, fail_reason, updated_at)
VALUES ($1, $2, $3, NULLIF($4,''), NOW())
ON CONFLICT (namespace)
DO UPDATE SET status=EXCLUDED.status, chunk_count=EXCLUDED.chunk_count, fail_reason=EXCLUDED.fail_reason,
              claim_token=NULL, updated_at=NOW()`,
		namespace, string(status), chunkCount, failReason)
	if err != nil {
		return fmt.Errorf("update namespace status: %w", err)
	}
	return nil
}

func (r *NamespaceRepo) ListByStatus(ctx context.Context, status models.NamespaceStatus, limit int) ([]models.Namespace, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT namespace, status, chunk_count, COALESCE(fail_reason,''), updated_at
FROM vector_namespaces
WHERE status=$1
ORDER BY updated_at ASC
LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()
	out := make([]models.Namespace, 0)
	for rows.Next() {
		var ns models.Namespace
		if err := rows.Scan(&ns.Name, &ns.Status, &ns.ChunkCount, &ns.FailReason, &ns.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"docchat/internal/models"
)

type ChunkRecord struct {
	Chunk     models.Chunk
	Embedding []float32
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// UpsertChunks writes every record under namespace in a single transaction, so
// either the whole batch lands or none of it does.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, namespace string, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		c := rec.Chunk
		batch.Queue(`
INSERT INTO document_chunks (chunk_id, namespace, page, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding`,
			c.ChunkID, namespace, c.Page, c.ChunkIndex, c.Text, pgvector.NewVector(rec.Embedding),
		)
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for _, rec := range records {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert chunk %s: %w", rec.Chunk.ChunkID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close chunk batch: %w", err)
		}
		return nil
	})
}

func (r *ChunkRepo) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM document_chunks WHERE namespace=$1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("delete namespace chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ChunkRepo) CountNamespace(ctx context.Context, namespace string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks WHERE namespace=$1`, namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("count namespace chunks: %w", err)
	}
	return n, nil
}

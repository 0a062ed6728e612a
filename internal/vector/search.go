package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"docchat/internal/models"
)

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchChunks returns the topK chunks in namespace closest to queryVec by cosine
// distance, best first.
func (s *Searcher) SearchChunks(ctx context.Context, namespace string, queryVec []float32, topK int) ([]models.ChunkMatch, error) {
	if topK <= 0 {
		topK = 4
	}
	rows, err := s.q.Query(ctx, `
SELECT c.chunk_id,
       c.namespace,
       c.page,
       c.chunk_index,
       c.text,
       1 - (c.embedding <=> $2::vector) AS score
FROM document_chunks c
WHERE c.namespace = $1
ORDER BY c.embedding <=> $2::vector
LIMIT $3`, namespace, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkMatch, 0, topK)
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.Chunk.ChunkID, &m.Chunk.DocumentID, &m.Chunk.Page, &m.Chunk.ChunkIndex, &m.Chunk.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

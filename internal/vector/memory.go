package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/models"
)

// MemoryStore is an in-process Store using brute-force cosine similarity. It is
// used by tests and by the CLI when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	vectors    map[string]map[string]Record
	namespaces map[string]models.Namespace
	claims     map[string]string
	now        func() time.Time
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		vectors:    map[string]map[string]Record{},
		namespaces: map[string]models.Namespace{},
		claims:     map[string]string{},
		now:        time.Now,
	}
}

func (s *MemoryStore) Namespace(ctx context.Context, namespace string) (models.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return models.Namespace{Name: namespace, Status: models.NamespaceAbsent}, nil
	}
	return ns, nil
}

func (s *MemoryStore) ClaimNamespace(ctx context.Context, namespace string, staleAfter time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ns, ok := s.namespaces[namespace]
	switch {
	case !ok, ns.Status == models.NamespaceFailed:
	case ns.Status == models.NamespacePending && now.Sub(ns.UpdatedAt) > staleAfter:
	default:
		return "", false, nil
	}
	token := uuid.NewString()
	s.namespaces[namespace] = models.Namespace{Name: namespace, Status: models.NamespacePending, UpdatedAt: now}
	s.claims[namespace] = token
	return token, true, nil
}

func (s *MemoryStore) RenewClaim(ctx context.Context, namespace, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(namespace, token) {
		return false, nil
	}
	ns := s.namespaces[namespace]
	ns.UpdatedAt = s.now()
	s.namespaces[namespace] = ns
	return true, nil
}

func (s *MemoryStore) ReleaseClaim(ctx context.Context, namespace, token string, status models.NamespaceStatus, chunkCount int, failReason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(namespace, token) {
		return false, nil
	}
	s.setStatus(namespace, status, chunkCount, failReason)
	return true, nil
}

func (s *MemoryStore) holds(namespace, token string) bool {
	ns, ok := s.namespaces[namespace]
	return ok && token != "" && ns.Status == models.NamespacePending && s.claims[namespace] == token
}

func (s *MemoryStore) SetNamespaceStatus(ctx context.Context, namespace string, status models.NamespaceStatus, chunkCount int, failReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatus(namespace, status, chunkCount, failReason)
	return nil
}

func (s *MemoryStore) setStatus(namespace string, status models.NamespaceStatus, chunkCount int, failReason string) {
	delete(s.claims, namespace)
	s.namespaces[namespace] = models.Namespace{
		Name:       namespace,
		Status:     status,
		ChunkCount: chunkCount,
		FailReason: failReason,
		UpdatedAt:  s.now(),
	}
}

func (s *MemoryStore) ListNamespaces(ctx context.Context, status models.NamespaceStatus, limit int) ([]models.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Namespace, 0)
	for _, ns := range s.namespaces {
		if ns.Status == status {
			out = append(out, ns)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert validates the whole batch before writing any of it.
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	for _, r := range records {
		if s.dimension > 0 && len(r.Embedding) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d want %d", len(r.Embedding), s.dimension)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.vectors[namespace]
	if !ok {
		bucket = map[string]Record{}
		s.vectors[namespace] = bucket
	}
	for _, r := range records {
		bucket[r.Chunk.ChunkID] = r
	}
	return nil
}

func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, namespace)
	return nil
}

// Count reports how many vectors are stored under namespace.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors[namespace])
}

func (s *MemoryStore) Search(ctx context.Context, namespace string, query []float32, topK int) ([]models.ChunkMatch, error) {
	if topK <= 0 {
		topK = 4
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.vectors[namespace]
	out := make([]models.ChunkMatch, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, models.ChunkMatch{Chunk: r.Chunk, Score: cosine(r.Embedding, query)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package embedstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
	"docchat/internal/vector"
)

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Ingest(ctx context.Context, documentID string) ([]models.Chunk, error) {
	args := m.Called(ctx, documentID)
	chunks, _ := args.Get(0).([]models.Chunk)
	return chunks, args.Error(1)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	return nil, providers.ProviderInfo{Name: "stub"}, errors.New("embedding error 500")
}

// partialStore writes the first record and then fails, like a batch that dies midway.
type partialStore struct {
	*vector.MemoryStore
}

func (p partialStore) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := p.MemoryStore.Upsert(ctx, namespace, records[:1]); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func threeChunks(id string) []models.Chunk {
	out := make([]models.Chunk, 0, 3)
	for i, text := range []string{"The deadline is Friday.", "Scope covers ingestion.", "Budget is fixed."} {
		out = append(out, models.Chunk{ChunkID: fmt.Sprintf("%s-%d", id, i), DocumentID: id, Page: 1, ChunkIndex: i, Text: text})
	}
	return out
}

func newAdapter(store vector.Store, ing Ingestor, emb providers.EmbeddingProvider) *Adapter {
	cfg := config.Config{EmbedDim: 16, EmbedBatchSize: 2, LockTTL: time.Minute}
	a := New(cfg, Deps{
		Store:    store,
		Ingestor: ing,
		Embedder: emb,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	a.poll = 5 * time.Millisecond
	return a
}

func TestEnsureEmbeddedTwiceIngestsOnce(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil).Once()
	a := newAdapter(store, ing, providers.NewMockProvider(16))

	h1, err := a.EnsureEmbedded(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, h1.Created)
	require.Equal(t, 3, h1.ChunkCount)

	h2, err := a.EnsureEmbedded(context.Background(), "doc-1")
	require.NoError(t, err)
	require.False(t, h2.Created)
	require.Equal(t, 3, h2.ChunkCount)

	require.Equal(t, 3, store.Count("doc-1"))
	ing.AssertExpectations(t)
}

func TestEnsureEmbeddedConcurrentCallersShareOnePass(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil).Once()
	a := newAdapter(store, ing, providers.NewMockProvider(16))

	var wg sync.WaitGroup
	created := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := a.EnsureEmbedded(context.Background(), "doc-1")
			require.NoError(t, err)
			created <- h.Created
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	require.Equal(t, 1, n)
	require.Equal(t, 3, store.Count("doc-1"))
	ing.AssertNumberOfCalls(t, "Ingest", 1)
}

func TestEnsureEmbeddedEmbeddingFailureMarksFailed(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil)

	_, err := newAdapter(store, ing, failingEmbedder{}).EnsureEmbedded(context.Background(), "doc-1")
	require.ErrorIs(t, err, util.ErrEmbedding)

	ns, err := store.Namespace(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, models.NamespaceFailed, ns.Status)
	require.Zero(t, store.Count("doc-1"))

	h, err := newAdapter(store, ing, providers.NewMockProvider(16)).EnsureEmbedded(context.Background(), "doc-1")
	require.NoError(t, err, "a failed namespace is re-ingested on the next call")
	require.True(t, h.Created)
	require.Equal(t, 3, store.Count("doc-1"))
}

func TestEnsureEmbeddedStoreFailureRollsBackPartialWrites(t *testing.T) {
	mem := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil)

	_, err := newAdapter(partialStore{mem}, ing, providers.NewMockProvider(16)).EnsureEmbedded(context.Background(), "doc-1")
	require.ErrorIs(t, err, util.ErrStoreWrite)
	require.Zero(t, mem.Count("doc-1"), "partial vectors must be removed")

	ns, err := mem.Namespace(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, models.NamespaceFailed, ns.Status)
	require.Contains(t, ns.FailReason, "connection reset")
}

func TestEnsureEmbeddedPropagatesIngestErrors(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "missing").Return(nil, fmt.Errorf("lookup missing: %w", util.ErrNotFound))

	_, err := newAdapter(store, ing, providers.NewMockProvider(16)).EnsureEmbedded(context.Background(), "missing")
	require.ErrorIs(t, err, util.ErrNotFound)
	require.False(t, errors.Is(err, util.ErrEmbedding))
}

func TestEnsureEmbeddedWaitsForForeignPendingClaim(t *testing.T) {
	store := vector.NewMemoryStore(16)
	_, ok, err := store.ClaimNamespace(context.Background(), "doc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ing := &mockIngestor{}
	a := newAdapter(store, ing, providers.NewMockProvider(16))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = a.EnsureEmbedded(ctx, "doc-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.SetNamespaceStatus(context.Background(), "doc-1", models.NamespaceComplete, 7, "")
	}()
	h, err := a.EnsureEmbedded(context.Background(), "doc-1")
	require.NoError(t, err)
	require.False(t, h.Created)
	require.Equal(t, 7, h.ChunkCount)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestEnsureEmbeddedDisplacedOwnerLeavesTakeoverIntact(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ctx := context.Background()
	other := make([]vector.Record, 0, 7)
	for i := 0; i < 7; i++ {
		v := make([]float32, 16)
		v[i] = 1
		other = append(other, vector.Record{
			Chunk:     models.Chunk{ChunkID: fmt.Sprintf("other-%d", i), DocumentID: "doc-1", ChunkIndex: i, Text: "takeover"},
			Embedding: v,
		})
	}

	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil).Run(func(mock.Arguments) {
		// A second worker decides this claim is stale and finishes the namespace first.
		token, ok, err := store.ClaimNamespace(ctx, "doc-1", -1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.Upsert(ctx, "doc-1", other))
		released, err := store.ReleaseClaim(ctx, "doc-1", token, models.NamespaceComplete, 7, "")
		require.NoError(t, err)
		require.True(t, released)
	})

	_, err := newAdapter(store, ing, providers.NewMockProvider(16)).EnsureEmbedded(ctx, "doc-1")
	require.ErrorIs(t, err, util.ErrStoreWrite)
	require.ErrorIs(t, err, ErrClaimLost)

	ns, err := store.Namespace(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, models.NamespaceComplete, ns.Status)
	require.Equal(t, 7, ns.ChunkCount)
	require.Equal(t, 7, store.Count("doc-1"))
}

func TestEnsureEmbeddedBatchesEmbeddingCalls(t *testing.T) {
	store := vector.NewMemoryStore(16)
	ing := &mockIngestor{}
	ing.On("Ingest", mock.Anything, "doc-1").Return(threeChunks("doc-1"), nil)
	emb := &countingEmbedder{inner: providers.NewMockProvider(16)}

	_, err := newAdapter(store, ing, emb).EnsureEmbedded(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, emb.sizes)
}

type countingEmbedder struct {
	inner providers.EmbeddingProvider
	sizes []int
}

func (c *countingEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	c.sizes = append(c.sizes, len(req.Inputs))
	return c.inner.Embed(ctx, req)
}

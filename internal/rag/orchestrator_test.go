package rag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/embedstore"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/retriever"
	"docchat/internal/util"
	"docchat/internal/vector"
)

type stubIngestor struct {
	mu     sync.Mutex
	chunks map[string][]models.Chunk
	calls  map[string]int
}

func (s *stubIngestor) Ingest(ctx context.Context, documentID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[documentID]++
	chunks, ok := s.chunks[documentID]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", documentID, util.ErrNotFound)
	}
	return chunks, nil
}

// countingStore counts vector writes.
type countingStore struct {
	*vector.MemoryStore
	writes atomic.Int64
}

func (c *countingStore) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	c.writes.Add(int64(len(records)))
	return c.MemoryStore.Upsert(ctx, namespace, records)
}

type noCalls struct{ t *testing.T }

func (n noCalls) EnsureEmbedded(ctx context.Context, documentID string) (embedstore.Handle, error) {
	n.t.Fatalf("EnsureEmbedded called for %s", documentID)
	return embedstore.Handle{}, nil
}

func (n noCalls) Retrieve(ctx context.Context, documentID, query string, k int) (models.RetrievalResult, error) {
	n.t.Fatalf("Retrieve called for %s", documentID)
	return models.RetrievalResult{}, nil
}

func threeChunkDoc() []models.Chunk {
	texts := []string{
		"The project deadline is Friday the 14th.",
		"Ingestion splits PDFs into overlapping windows.",
		"Retrieval returns the four closest chunks.",
	}
	out := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		out = append(out, models.Chunk{ChunkID: fmt.Sprintf("doc-1-%d", i), DocumentID: "doc-1", Page: 1, ChunkIndex: i, Text: text})
	}
	return out
}

type pipeline struct {
	orch  *Orchestrator
	store *countingStore
	ing   *stubIngestor
	logs  *bytes.Buffer
}

func newPipeline(chunks map[string][]models.Chunk) pipeline {
	cfg := config.Config{TopK: 4, RetrievalConcurrency: 2, EmbedDim: 16, EmbedBatchSize: 8, LockTTL: time.Minute}
	store := &countingStore{MemoryStore: vector.NewMemoryStore(16)}
	ing := &stubIngestor{chunks: chunks}
	emb := providers.NewMockProvider(16)
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	adapter := embedstore.New(cfg, embedstore.Deps{Store: store, Ingestor: ing, Embedder: emb, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ret := retriever.New(cfg, store, emb)
	return pipeline{orch: New(cfg, adapter, ret, nil, log), store: store, ing: ing, logs: &logs}
}

func pdfRef(id, name string) models.DocumentRef {
	return models.DocumentRef{ID: id, Name: name, URL: "https://files.example/" + id, MimeType: models.MimePDF}
}

func TestBuildContextNoRefs(t *testing.T) {
	p := newPipeline(nil)
	ctxText, report := p.orch.BuildContext(context.Background(), nil, "anything")
	require.Empty(t, ctxText)
	require.Empty(t, report.Documents)
	require.Equal(t, GenericSystemPrompt, SystemPrompt(ctxText))
}

func TestBuildContextSkipsNonPDFWithoutTouchingAdapters(t *testing.T) {
	var logs bytes.Buffer
	o := New(config.Config{TopK: 4}, noCalls{t}, noCalls{t}, nil, slog.New(slog.NewTextHandler(&logs, nil)))
	refs := []models.DocumentRef{{ID: "doc-2", Name: "notes.txt", MimeType: "text/plain"}}

	ctxText, report := o.BuildContext(context.Background(), refs, "what is in the notes?")
	require.Empty(t, ctxText)
	require.Equal(t, 1, report.Count(DocumentSkipped))
	require.Contains(t, logs.String(), "skipping non-PDF document")
}

func TestBuildContextFirstTurnEmbedsSecondTurnReuses(t *testing.T) {
	p := newPipeline(map[string][]models.Chunk{"doc-1": threeChunkDoc()})
	refs := []models.DocumentRef{pdfRef("doc-1", "Spec.pdf")}

	first, report := p.orch.BuildContext(context.Background(), refs, "What is the deadline?")
	require.NotEmpty(t, first)
	require.Equal(t, 1, report.Count(DocumentUsed))
	require.Equal(t, 3, report.Documents[0].Chunks)
	require.True(t, strings.HasPrefix(first, `Document "Spec.pdf" Chunk 1: `))
	require.Contains(t, first, `Document "Spec.pdf" Chunk 3: `)
	require.Equal(t, 2, strings.Count(first, "\n\n"))
	require.EqualValues(t, 3, p.store.writes.Load())

	second, _ := p.orch.BuildContext(context.Background(), refs, "Who owns ingestion?")
	require.NotEmpty(t, second)
	require.EqualValues(t, 3, p.store.writes.Load(), "second turn must not write vectors")
	require.Equal(t, 1, p.ing.calls["doc-1"])
	require.Equal(t, 3, p.store.Count("doc-1"))

	repeat, _ := p.orch.BuildContext(context.Background(), refs, "what is the deadline")
	require.NotEmpty(t, repeat)
	require.True(t, strings.HasPrefix(repeat, `Document "Spec.pdf" Chunk 1: `))
	require.EqualValues(t, 3, p.store.writes.Load(), "repeated query must not write vectors")
	require.Equal(t, 1, p.ing.calls["doc-1"])

	prompt := SystemPrompt(second)
	require.True(t, strings.HasPrefix(prompt, GenericSystemPrompt+". Use the following document context to inform your response:\n\n"))
	require.True(t, strings.HasSuffix(prompt, second))
}

func TestBuildContextRegistryFailureFallsBackToGenericPrompt(t *testing.T) {
	p := newPipeline(map[string][]models.Chunk{})
	refs := []models.DocumentRef{pdfRef("doc-9", "Missing.pdf")}

	ctxText, report := p.orch.BuildContext(context.Background(), refs, "hello")
	require.Empty(t, ctxText)
	require.Equal(t, 1, report.Count(DocumentFailed))
	require.Contains(t, report.Documents[0].Error, "not found")
	require.Contains(t, p.logs.String(), "document retrieval failed")
	require.Contains(t, p.logs.String(), "doc-9")
	require.Equal(t, GenericSystemPrompt, SystemPrompt(ctxText))
}

func TestBuildContextKeepsReferenceOrderAndIsolatesFailures(t *testing.T) {
	other := []models.Chunk{{ChunkID: "doc-3-0", DocumentID: "doc-3", Page: 1, Text: "Appendix about billing."}}
	p := newPipeline(map[string][]models.Chunk{"doc-1": threeChunkDoc(), "doc-3": other})
	refs := []models.DocumentRef{
		pdfRef("doc-3", "Appendix.pdf"),
		pdfRef("doc-9", "Missing.pdf"),
		{ID: "doc-4", Name: "image.png", MimeType: "image/png"},
		pdfRef("doc-1", "Spec.pdf"),
	}

	ctxText, report := p.orch.BuildContext(context.Background(), refs, "billing deadline")
	require.Equal(t, []DocumentStatus{DocumentUsed, DocumentFailed, DocumentSkipped, DocumentUsed},
		[]DocumentStatus{report.Documents[0].Status, report.Documents[1].Status, report.Documents[2].Status, report.Documents[3].Status})

	blocks := strings.Split(ctxText, "\n\n")
	require.Len(t, blocks, 4)
	require.Equal(t, `Document "Appendix.pdf" Chunk 1: Appendix about billing.`, blocks[0])
	for i, b := range blocks[1:] {
		require.True(t, strings.HasPrefix(b, fmt.Sprintf(`Document "Spec.pdf" Chunk %d: `, i+1)), b)
	}
	require.Zero(t, p.ing.calls["doc-4"])
}

type slowEnsurer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowEnsurer) EnsureEmbedded(ctx context.Context, documentID string) (embedstore.Handle, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return embedstore.Handle{Namespace: documentID}, nil
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(ctx context.Context, documentID, query string, k int) (models.RetrievalResult, error) {
	return models.RetrievalResult{}, fmt.Errorf("%w: %s", util.ErrRetrieval, documentID)
}

func TestBuildContextBoundsConcurrency(t *testing.T) {
	ens := &slowEnsurer{}
	o := New(config.Config{TopK: 4, RetrievalConcurrency: 2}, ens, failingRetriever{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	refs := make([]models.DocumentRef, 0, 6)
	for i := 0; i < 6; i++ {
		refs = append(refs, pdfRef(fmt.Sprintf("doc-%d", i), fmt.Sprintf("d%d.pdf", i)))
	}

	ctxText, report := o.BuildContext(context.Background(), refs, "q")
	require.Empty(t, ctxText)
	require.Equal(t, 6, report.Count(DocumentFailed))
	require.LessOrEqual(t, ens.peak.Load(), int32(2))
	require.Contains(t, report.Documents[0].Error, "retrieval")
}

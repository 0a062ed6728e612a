package retriever

import (
	"context"
	"fmt"
	"sort"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
	"docchat/internal/vector"
)

// Retriever runs top-k similarity search inside one document namespace. Query
// embeddings and results are never cached.
type Retriever struct {
	store    vector.Store
	embedder providers.EmbeddingProvider
	dim      int
	topK     int
}

func New(cfg config.Config, store vector.Store, embedder providers.EmbeddingProvider) *Retriever {
	k := cfg.TopK
	if k <= 0 {
		k = 4
	}
	return &Retriever{store: store, embedder: embedder, dim: cfg.EmbedDim, topK: k}
}

// Retrieve returns at most k chunks ordered by non-increasing score. k <= 0 uses
// the configured default. The namespace must be complete.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	ns, err := r.store.Namespace(ctx, documentID)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("%w: %s: %w", util.ErrRetrieval, documentID, err)
	}
	if ns.Status != models.NamespaceComplete {
		return models.RetrievalResult{}, fmt.Errorf("%w: %s: %w (status %q)", util.ErrRetrieval, documentID, util.ErrNamespaceMissing, ns.Status)
	}

	vecs, _, err := r.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "embed_query",
		Inputs:    []string{query},
		Dimension: r.dim,
	})
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("%w: %s: embed query: %w", util.ErrRetrieval, documentID, err)
	}
	if len(vecs) == 0 {
		return models.RetrievalResult{}, fmt.Errorf("%w: %s: embedding provider returned empty vectors", util.ErrRetrieval, documentID)
	}

	matches, err := r.store.Search(ctx, documentID, vecs[0], k)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("%w: %s: %w", util.ErrRetrieval, documentID, err)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return models.RetrievalResult{DocumentID: documentID, Matches: matches}, nil
}

package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to an embedding provider with a token bucket.
// Each Embed call consumes one token regardless of batch size.
type RateLimitedEmbedder struct {
	inner   EmbeddingProvider
	limiter *rate.Limiter
}

func NewRateLimitedEmbedder(inner EmbeddingProvider, rps float64, burst int) *RateLimitedEmbedder {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, ProviderInfo{}, fmt.Errorf("embedding rate limit wait: %w", err)
	}
	return r.inner.Embed(ctx, req)
}

package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitedEmbedderPassesThrough(t *testing.T) {
	e := NewRateLimitedEmbedder(NewMockProvider(8), 0, 0)
	vecs, info, err := e.Embed(context.Background(), EmbedRequest{Inputs: []string{"a"}, Dimension: 8})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if info.Name != "mock" || len(vecs) != 1 || len(vecs[0]) != 8 {
		t.Fatalf("unexpected result %v %+v", vecs, info)
	}
}

func TestRateLimitedEmbedderHonoursContext(t *testing.T) {
	e := NewRateLimitedEmbedder(NewMockProvider(8), 0.001, 1)
	if _, _, err := e.Embed(context.Background(), EmbedRequest{Inputs: []string{"a"}}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := e.Embed(ctx, EmbedRequest{Inputs: []string{"b"}}); err == nil {
		t.Fatalf("expected wait to fail once the bucket is empty")
	}
}

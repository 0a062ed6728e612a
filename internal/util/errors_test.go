package util

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrappedTaxonomyIsClassifiable(t *testing.T) {
	err := fmt.Errorf("ingest doc-1: %w", fmt.Errorf("%w: %w", ErrFetch, ErrNoExtractableText))
	if !errors.Is(err, ErrFetch) || !errors.Is(err, ErrNoExtractableText) {
		t.Fatalf("expected both sentinels to match: %v", err)
	}
	if errors.Is(err, ErrEmbedding) {
		t.Fatalf("unexpected match for ErrEmbedding")
	}
}

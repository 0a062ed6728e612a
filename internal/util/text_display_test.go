package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplaySnippetFlattensAndTruncates(t *testing.T) {
	require.Equal(t, "Hello world C", DisplaySnippet("Hello\x00   world \n\t C", 100))
	require.Equal(t, "abcde...", DisplaySnippet("abcdefghij", 5))
	require.Equal(t, "", DisplaySnippet("  \n ", 10))
}

func TestDisplayEvidenceSnippetPicksMatchingSentences(t *testing.T) {
	chunk := "The onboarding guide covers laptops. Refunds are issued within 14 days. " +
		"Refund requests need a receipt. The office closes at 6pm."
	out := DisplayEvidenceSnippet(chunk, "How do refund requests work?", 200)
	require.Equal(t, "Refunds are issued within 14 days. Refund requests need a receipt.", out)
}

func TestDisplayEvidenceSnippetSingleMatch(t *testing.T) {
	chunk := "Intro text here. Nothing useful. The latency budget is 3.5 ms per call."
	out := DisplayEvidenceSnippet(chunk, "latency budget", 200)
	require.Equal(t, "The latency budget is 3.5 ms per call.", out)
}

func TestDisplayEvidenceSnippetFallsBackToHead(t *testing.T) {
	chunk := "First sentence. Second sentence."
	require.Equal(t, "First...", DisplayEvidenceSnippet(chunk, "kubernetes", 5))
	require.Equal(t, "First sentence. Second sentence.", DisplayEvidenceSnippet(chunk, "", 0))
}

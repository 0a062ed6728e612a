package util

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := ChunkText(text, 10, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0] != "abcdefghij" {
		t.Fatalf("unexpected first chunk: %s", chunks[0])
	}
	if chunks[2] != "qrstuvwxyz" {
		t.Fatalf("unexpected last chunk: %s", chunks[2])
	}
}

func TestChunkTextOverlapAndCoverage(t *testing.T) {
	for _, n := range []int{1, 99, 500, 501, 899, 900, 1234, 5000} {
		text := strings.Repeat("0123456789", n/10+1)[:n]
		chunks := ChunkText(text, 500, 100)
		if len(chunks) == 0 {
			t.Fatalf("n=%d: no chunks", n)
		}
		var rebuilt strings.Builder
		for i, c := range chunks {
			r := []rune(c)
			if len(r) > 500 {
				t.Fatalf("n=%d chunk %d: size %d exceeds max", n, i, len(r))
			}
			if i < len(chunks)-1 && len(r) != 500 {
				t.Fatalf("n=%d chunk %d: only the last chunk may be short, got %d", n, i, len(r))
			}
			if i == 0 {
				rebuilt.WriteString(c)
				continue
			}
			prev := []rune(chunks[i-1])
			if string(prev[len(prev)-100:]) != string(r[:100]) {
				t.Fatalf("n=%d chunk %d: overlap mismatch", n, i)
			}
			rebuilt.WriteString(string(r[100:]))
		}
		if rebuilt.String() != text {
			t.Fatalf("n=%d: chunks do not cover the text", n)
		}
	}
}

func TestChunkTextCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 650)
	chunks := ChunkText(text, 500, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if n := len([]rune(chunks[1])); n != 250 {
		t.Fatalf("expected trailing chunk of 250 runes, got %d", n)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if got := ChunkText("", 500, 100); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
}

func TestChunkTextDefaults(t *testing.T) {
	chunks := ChunkText(strings.Repeat("x", 600), 0, -1)
	if len(chunks) != 2 || len([]rune(chunks[0])) != DefaultChunkSize {
		t.Fatalf("unexpected default chunking: %d chunks", len(chunks))
	}
}

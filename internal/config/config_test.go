package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCCHAT_CHUNK_SIZE", "")
	t.Setenv("DOCCHAT_TOP_K", "")
	cfg := Load()
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 || cfg.TopK != 4 {
		t.Fatalf("unexpected defaults: size=%d overlap=%d k=%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.TopK)
	}
	if cfg.EmbedDim != 768 {
		t.Fatalf("expected 768 dims, got %d", cfg.EmbedDim)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected request timeout %s", cfg.RequestTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCCHAT_TOP_K", "8")
	t.Setenv("DOCCHAT_FETCH_TIMEOUT", "5s")
	t.Setenv("DOCCHAT_EMBED_RPS", "bogus")
	cfg := Load()
	if cfg.TopK != 8 {
		t.Fatalf("expected k=8, got %d", cfg.TopK)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Fatalf("expected 5s fetch timeout, got %s", cfg.FetchTimeout)
	}
	if cfg.EmbedRPS != 5 {
		t.Fatalf("invalid float should fall back, got %v", cfg.EmbedRPS)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "doc_id", "doc-1")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"doc_id":"doc-1"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

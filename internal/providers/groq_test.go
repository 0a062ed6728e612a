package providers

import (
	"context"
	"testing"
)

func TestResolveGroqKeyAlias(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "base")
	t.Setenv("DOCCHAT_GROQ_KEY_TEAM", "team")
	if got := resolveGroqKey("team"); got != "team" {
		t.Fatalf("expected alias key, got %q", got)
	}
	if got := resolveGroqKey("other"); got != "base" {
		t.Fatalf("expected fallback key, got %q", got)
	}
}

func TestGroqWithoutKeyFails(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	_, info, err := NewGroqProvider("").Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
	if info.Name != "groq" {
		t.Fatalf("unexpected provider info %+v", info)
	}
}

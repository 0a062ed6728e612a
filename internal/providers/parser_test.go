package providers

import "testing"

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("mock|openai:key1|openai:key2")
	if len(refs) != 3 {
		t.Fatalf("expected 3 providers got %d", len(refs))
	}
	if refs[1].Name != "openai" || refs[1].KeyAlias != "key1" {
		t.Fatalf("unexpected parse result: %+v", refs[1])
	}
}

func TestParseProviderListDedupesAndDefaults(t *testing.T) {
	refs := ParseProviderList(" Gemini | gemini |")
	if len(refs) != 1 || refs[0].Name != "gemini" {
		t.Fatalf("unexpected parse result: %+v", refs)
	}
	if refs := ParseProviderList(""); len(refs) != 1 || refs[0].Name != "mock" {
		t.Fatalf("expected mock fallback, got %+v", refs)
	}
}

package providers

import (
	"fmt"
	"strings"

	"docchat/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

// Embedder returns the preferred embedding provider. Document and query vectors
// must come from the same model, so there is no failover between embedders.
func (m *Manager) Embedder() (EmbeddingProvider, ProviderRef) {
	order := m.PreferredEmbedOrder()
	i := order[0]
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

// ChatProvider picks the provider whose name prefixes the requested model id
// (e.g. "gemini-2.5-flash" selects "gemini"); otherwise the preferred one.
func (m *Manager) ChatProvider(model string) (StreamingLLMProvider, ProviderRef) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model != "" {
		for _, p := range m.llmProviders {
			if strings.HasPrefix(model, strings.ToLower(p.Ref.Name)) {
				return AsStreaming(p.Provider), p.Ref
			}
		}
	}
	i := m.PreferredLLMOrder()[0]
	return AsStreaming(m.llmProviders[i].Provider), m.llmProviders[i].Ref
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, cfg config.Config) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "gemini", "google":
		key := cfg.GeminiAPIKey
		if ref.KeyAlias != "" {
			key = ""
		}
		return NewGeminiProvider(ref.KeyAlias, key, cfg.GeminiBaseURL), nil
	case "openai", "gpt":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}

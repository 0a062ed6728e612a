package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Operation string    `json:"operation"`
	Model     string    `json:"model,omitempty"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Context   []string  `json:"context,omitempty"`
	WebSearch bool      `json:"web_search,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type GenerateResponse struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
	Usage   Usage    `json:"usage"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// StreamingLLMProvider emits events as the model produces them and returns the
// aggregated response once the stream ends. A non-nil error from emit stops the stream.
type StreamingLLMProvider interface {
	Stream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) (GenerateResponse, ProviderInfo, error)
}

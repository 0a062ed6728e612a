package providers

import (
	"context"
	"strings"
)

type EventType string

const (
	EventText      EventType = "text-delta"
	EventReasoning EventType = "reasoning-delta"
	EventSource    EventType = "source"
	EventFinish    EventType = "finish"
)

type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type StreamEvent struct {
	Type   EventType `json:"type"`
	Delta  string    `json:"delta,omitempty"`
	Source *Source   `json:"source,omitempty"`
	Usage  *Usage    `json:"usage,omitempty"`
}

// AsStreaming adapts a provider that only supports one-shot generation. The whole
// answer is delivered as a single text event.
func AsStreaming(p LLMProvider) StreamingLLMProvider {
	if s, ok := p.(StreamingLLMProvider); ok {
		return s
	}
	return oneShotStream{p: p}
}

type oneShotStream struct {
	p LLMProvider
}

func (o oneShotStream) Stream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) (GenerateResponse, ProviderInfo, error) {
	resp, info, err := o.p.Generate(ctx, req)
	if err != nil {
		return resp, info, err
	}
	if resp.Text != "" {
		if err := emit(StreamEvent{Type: EventText, Delta: resp.Text}); err != nil {
			return resp, info, err
		}
	}
	for i := range resp.Sources {
		if err := emit(StreamEvent{Type: EventSource, Source: &resp.Sources[i]}); err != nil {
			return resp, info, err
		}
	}
	usage := resp.Usage
	if err := emit(StreamEvent{Type: EventFinish, Usage: &usage}); err != nil {
		return resp, info, err
	}
	return resp, info, nil
}

// chatMessages flattens a request into OpenAI-style role/content pairs.
func chatMessages(req GenerateRequest, defaultSystem string) []map[string]string {
	system := req.System
	if system == "" {
		system = defaultSystem
	}
	out := []map[string]string{{"role": "system", "content": system}}
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			out = append(out, map[string]string{"role": m.Role, "content": m.Content})
		}
		return out
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	return append(out, map[string]string{"role": "user", "content": prompt})
}

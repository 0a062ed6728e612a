package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(_ context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var b strings.Builder
	if strings.Contains(req.System, "document context") {
		b.WriteString("Based on the attached documents: ")
	} else {
		b.WriteString("Mock response: ")
	}
	last := req.Prompt
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	b.WriteString(strings.TrimSpace(last))
	text := b.String()
	usage := Usage{InputTokens: countWords(req.System) + countWords(last), OutputTokens: countWords(text)}
	return GenerateResponse{Text: text, Usage: usage}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

// Stream emits the mock answer word by word.
func (m *MockProvider) Stream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) (GenerateResponse, ProviderInfo, error) {
	resp, info, _ := m.Generate(ctx, req)
	words := strings.SplitAfter(resp.Text, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return resp, info, err
		}
		if w == "" {
			continue
		}
		if err := emit(StreamEvent{Type: EventText, Delta: w}); err != nil {
			return resp, info, err
		}
	}
	usage := resp.Usage
	if err := emit(StreamEvent{Type: EventFinish, Usage: &usage}); err != nil {
		return resp, info, err
	}
	return resp, info, nil
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251), byte(i/251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"docchat/internal/util"
)

const (
	geminiEmbedModel = "gemini-embedding-001"
	geminiChatModel  = "gemini-2.5-flash"
)

// GeminiProvider calls the Google Generative Language REST API.
type GeminiProvider struct {
	keyName string
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(keyName, apiKey, baseURL string) *GeminiProvider {
	if apiKey == "" {
		apiKey = resolveGeminiKey(keyName)
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		keyName: keyName,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: geminiEmbedModel, Key: g.keyName}
	if g.apiKey == "" {
		return nil, info, fmt.Errorf("gemini key missing for alias %q: %w", g.keyName, util.ErrPermanent)
	}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	task := "RETRIEVAL_DOCUMENT"
	if req.Operation == "embed_query" {
		task = "RETRIEVAL_QUERY"
	}
	type embedReq struct {
		Model                string        `json:"model"`
		Content              geminiContent `json:"content"`
		TaskType             string        `json:"taskType"`
		OutputDimensionality int           `json:"outputDimensionality,omitempty"`
	}
	reqs := make([]embedReq, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		reqs = append(reqs, embedReq{
			Model:                "models/" + geminiEmbedModel,
			Content:              geminiContent{Parts: []geminiPart{{Text: in}}},
			TaskType:             task,
			OutputDimensionality: req.Dimension,
		})
	}
	payload, _ := json.Marshal(map[string]any{"requests": reqs})
	resp, err := g.do(ctx, "/models/"+geminiEmbedModel+":batchEmbedContents", payload)
	if err != nil {
		return nil, info, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, statusError("gemini embedding", resp.StatusCode, raw)
	}
	var parsed struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode gemini embedding response: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, 0, len(parsed.Embeddings))
	for _, e := range parsed.Embeddings {
		out = append(out, matchDimension(e.Values, req.Dimension))
	}
	return out, info, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	return g.Stream(ctx, req, func(StreamEvent) error { return nil })
}

func (g *GeminiProvider) Stream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) (GenerateResponse, ProviderInfo, error) {
	model := geminiChatModel
	if strings.HasPrefix(req.Model, "gemini-") {
		model = req.Model
	}
	info := ProviderInfo{Name: "gemini", Model: model, Key: g.keyName}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("gemini key missing for alias %q: %w", g.keyName, util.ErrPermanent)
	}
	payload, _ := json.Marshal(geminiGenerateBody(req))
	resp, err := g.do(ctx, "/models/"+model+":streamGenerateContent?alt=sse", payload)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return GenerateResponse{}, info, statusError("gemini generate", resp.StatusCode, raw)
	}
	out, err := readGeminiStream(resp.Body, emit)
	if err != nil {
		return out, info, err
	}
	return out, info, nil
}

func geminiGenerateBody(req GenerateRequest) map[string]any {
	contents := make([]geminiContent, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(contents) == 0 {
		prompt := req.Prompt
		if len(req.Context) > 0 {
			prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
		}
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})
	}
	system := req.System
	if system == "" {
		system = defaultAssistantSystem
	}
	body := map[string]any{
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: system}}},
		"contents":          contents,
		"generationConfig": map[string]any{
			"thinkingConfig": map[string]any{"includeThoughts": true},
		},
	}
	if req.WebSearch {
		body["tools"] = []map[string]any{{"google_search": map[string]any{}}}
	}
	return body
}

type geminiChunk struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
}

// readGeminiStream consumes "data: {...}" server-sent events until EOF.
func readGeminiStream(r io.Reader, emit func(StreamEvent) error) (GenerateResponse, error) {
	var (
		out  GenerateResponse
		text strings.Builder
		seen = map[string]struct{}{}
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(line) == 0 || string(line) == "[DONE]" {
			continue
		}
		var chunk geminiChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return out, fmt.Errorf("decode gemini stream event: %w", err)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				ev := StreamEvent{Type: EventText, Delta: p.Text}
				if p.Thought {
					ev.Type = EventReasoning
				} else {
					text.WriteString(p.Text)
				}
				if err := emit(ev); err != nil {
					return out, err
				}
			}
			if cand.GroundingMetadata == nil {
				continue
			}
			for _, gc := range cand.GroundingMetadata.GroundingChunks {
				if gc.Web == nil || gc.Web.URI == "" {
					continue
				}
				if _, ok := seen[gc.Web.URI]; ok {
					continue
				}
				seen[gc.Web.URI] = struct{}{}
				src := Source{URL: gc.Web.URI, Title: gc.Web.Title}
				out.Sources = append(out.Sources, src)
				if err := emit(StreamEvent{Type: EventSource, Source: &src}); err != nil {
					return out, err
				}
			}
		}
		if chunk.UsageMetadata != nil {
			out.Usage = Usage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount + chunk.UsageMetadata.ThoughtsTokenCount,
			}
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read gemini stream: %w", err)
	}
	out.Text = text.String()
	usage := out.Usage
	if err := emit(StreamEvent{Type: EventFinish, Usage: &usage}); err != nil {
		return out, err
	}
	return out, nil
}

func (g *GeminiProvider) do(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	return g.client.Do(httpReq)
}

func resolveGeminiKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("DOCCHAT_GEMINI_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY")
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ledongthuc/pdf"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/util"
)

// Registry resolves a document id to its public download URL.
type Registry interface {
	LookupURL(ctx context.Context, documentID string) (string, error)
}

// Ingester fetches a registered PDF and splits it into overlapping chunks. It
// never writes to storage.
type Ingester struct {
	registry     Registry
	client       *http.Client
	chunkSize    int
	chunkOverlap int
	maxBytes     int64
}

func New(cfg config.Config, registry Registry, client *http.Client) *Ingester {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Ingester{
		registry:     registry,
		client:       client,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		maxBytes:     cfg.MaxDocumentBytes,
	}
}

func (in *Ingester) Ingest(ctx context.Context, documentID string) ([]models.Chunk, error) {
	url, err := in.registry.LookupURL(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", documentID, err)
	}
	body, err := in.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrFetch, documentID, err)
	}
	pages, err := ExtractPages(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrFetch, documentID, err)
	}
	chunks := SplitPages(documentID, pages, in.chunkSize, in.chunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest %s: %w", documentID, util.ErrNoExtractableText)
	}
	return chunks, nil
}

func (in *Ingester) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	limit := in.maxBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("document exceeds %d bytes", limit)
	}
	return b, nil
}

// ExtractPages returns the sanitized plain text of every page, in page order.
// Pages without text are returned as empty strings.
func ExtractPages(data []byte) (pages []string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, util.SanitizeText(text))
	}
	return pages, nil
}

// SplitPages windows each page independently. Chunk ids are derived from the
// document, position and content so a re-run produces the same ids.
func SplitPages(documentID string, pages []string, chunkSize, overlap int) []models.Chunk {
	out := make([]models.Chunk, 0, len(pages))
	idx := 0
	for p, text := range pages {
		if text == "" {
			continue
		}
		for _, part := range util.ChunkText(text, chunkSize, overlap) {
			out = append(out, models.Chunk{
				ChunkID:    ChunkID(documentID, p+1, idx, part),
				DocumentID: documentID,
				Page:       p + 1,
				ChunkIndex: idx,
				Text:       part,
			})
			idx++
		}
	}
	return out
}

func ChunkID(documentID string, page, index int, text string) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%d:%s", documentID, page, index, util.SHA256Hex([]byte(text)))))
}

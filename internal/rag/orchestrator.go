package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docchat/internal/config"
	"docchat/internal/embedstore"
	"docchat/internal/metrics"
	"docchat/internal/models"
)

const (
	GenericSystemPrompt  = "You are a helpful assistant that can answer questions and help with tasks"
	groundedPromptPrefix = GenericSystemPrompt + ". Use the following document context to inform your response:\n\n"
)

type Ensurer interface {
	EnsureEmbedded(ctx context.Context, documentID string) (embedstore.Handle, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) (models.RetrievalResult, error)
}

type DocumentStatus string

const (
	DocumentUsed    DocumentStatus = "used"
	DocumentSkipped DocumentStatus = "skipped"
	DocumentFailed  DocumentStatus = "failed"
)

type DocumentOutcome struct {
	DocumentID string         `json:"document_id"`
	Name       string         `json:"name"`
	Status     DocumentStatus `json:"status"`
	Chunks     int            `json:"chunks"`
	Error      string         `json:"error,omitempty"`
}

// Report describes what each referenced document contributed to the context.
type Report struct {
	Documents []DocumentOutcome `json:"documents"`
}

func (r Report) Count(status DocumentStatus) int {
	n := 0
	for _, d := range r.Documents {
		if d.Status == status {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	ensurer     Ensurer
	retriever   Retriever
	topK        int
	concurrency int
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func New(cfg config.Config, ensurer Ensurer, retriever Retriever, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	conc := cfg.RetrievalConcurrency
	if conc <= 0 {
		conc = 4
	}
	return &Orchestrator{
		ensurer:     ensurer,
		retriever:   retriever,
		topK:        cfg.TopK,
		concurrency: conc,
		metrics:     m,
		log:         log,
	}
}

// BuildContext retrieves chunks for every PDF reference concurrently and joins
// them in reference order. A document that fails is logged and left out; the
// result is empty when nothing could be retrieved.
func (o *Orchestrator) BuildContext(ctx context.Context, refs []models.DocumentRef, query string) (string, Report) {
	start := time.Now()
	defer func() { o.metrics.ObserveContextBuild(time.Since(start)) }()

	report := Report{Documents: make([]DocumentOutcome, len(refs))}
	blocks := make([][]string, len(refs))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, ref := range refs {
		report.Documents[i] = DocumentOutcome{DocumentID: ref.ID, Name: ref.Name}
		if !ref.IsPDF() {
			o.log.Warn("skipping non-PDF document", "doc_id", ref.ID, "name", ref.Name, "type", ref.MimeType)
			o.metrics.DocumentSkipped("unsupported_type")
			report.Documents[i].Status = DocumentSkipped
			report.Documents[i].Error = fmt.Sprintf("unsupported type %q", ref.MimeType)
			continue
		}
		g.Go(func() error {
			res, err := o.retrieve(ctx, ref.ID, query)
			if err != nil {
				o.log.Warn("document retrieval failed", "doc_id", ref.ID, "name", ref.Name, "err", err)
				o.metrics.Retrieval("error")
				report.Documents[i].Status = DocumentFailed
				report.Documents[i].Error = err.Error()
				return nil
			}
			o.metrics.Retrieval("ok")
			blocks[i] = formatBlocks(ref.Name, res)
			report.Documents[i].Status = DocumentUsed
			report.Documents[i].Chunks = len(res.Matches)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(refs)*o.topK)
	for _, b := range blocks {
		parts = append(parts, b...)
	}
	return strings.Join(parts, "\n\n"), report
}

func (o *Orchestrator) retrieve(ctx context.Context, documentID, query string) (models.RetrievalResult, error) {
	if _, err := o.ensurer.EnsureEmbedded(ctx, documentID); err != nil {
		return models.RetrievalResult{}, err
	}
	return o.retriever.Retrieve(ctx, documentID, query, o.topK)
}

func formatBlocks(name string, res models.RetrievalResult) []string {
	out := make([]string, 0, len(res.Matches))
	for i, m := range res.Matches {
		out = append(out, fmt.Sprintf("Document %q Chunk %d: %s", name, i+1, m.Chunk.Text))
	}
	return out
}

// SystemPrompt returns the document-grounded instruction when there is context
// and the generic one otherwise.
func SystemPrompt(context string) string {
	if strings.TrimSpace(context) == "" {
		return GenericSystemPrompt
	}
	return groundedPromptPrefix + context
}

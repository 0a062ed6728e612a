package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docchat/internal/config"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/rag"
	"docchat/internal/storage"
	"docchat/internal/util"
)

type ContextBuilder interface {
	BuildContext(ctx context.Context, refs []models.DocumentRef, query string) (string, rag.Report)
}

type ModelPicker interface {
	ChatProvider(model string) (providers.StreamingLLMProvider, providers.ProviderRef)
}

// Store persists chat sessions. EnsureSession returns the owner of the stored
// session; SessionOwner returns util.ErrNotFound for unknown ids.
type Store interface {
	SessionOwner(ctx context.Context, chatID string) (string, error)
	EnsureSession(ctx context.Context, s models.ChatSession) (string, error)
	InsertMessage(ctx context.Context, m models.ChatMessage) error
}

type CallRecorder interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

type Deps struct {
	Context ContextBuilder
	Models  ModelPicker
	Store   Store
	Audit   CallRecorder
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Service struct {
	rag          ContextBuilder
	models       ModelPicker
	store        Store
	audit        CallRecorder
	metrics      *metrics.Metrics
	log          *slog.Logger
	defaultModel string
	persistWait  time.Duration
}

func New(cfg config.Config, d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		rag:          d.Context,
		models:       d.Models,
		store:        d.Store,
		audit:        d.Audit,
		metrics:      d.Metrics,
		log:          d.Logger,
		defaultModel: cfg.DefaultChatModel,
		persistWait:  10 * time.Second,
	}
}

type Result struct {
	ChatID   string                 `json:"chat_id"`
	Text     string                 `json:"text"`
	Usage    models.Usage           `json:"usage"`
	Provider providers.ProviderInfo `json:"provider"`
	Report   rag.Report             `json:"report"`
}

// Turn answers the latest user message, streaming model events to emit, and
// saves the exchange once the stream has finished. A persistence failure is
// returned wrapped in util.ErrPersistence together with the completed result.
func (s *Service) Turn(ctx context.Context, userID string, req Request, emit func(providers.StreamEvent) error) (Result, error) {
	query, err := LatestUserText(req.Messages)
	if err != nil {
		return Result{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if err := s.checkOwner(ctx, userID, req.ID); err != nil {
		return Result{}, err
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	var ctxText string
	var report rag.Report
	if len(req.DocIDs) > 0 {
		ctxText, report = s.rag.BuildContext(ctx, req.DocIDs, query)
	}
	system := rag.SystemPrompt(ctxText)

	provider, ref := s.models.ChatProvider(model)
	resp, info, err := provider.Stream(ctx, providers.GenerateRequest{
		Operation: "chat",
		Model:     model,
		System:    system,
		Messages:  toProviderMessages(req.Messages),
		WebSearch: req.WebSearch,
	}, emit)
	if info.Name == "" {
		info.Name = ref.Name
	}
	s.record(ctx, req.ID, model, info, resp.Usage, err)
	if err != nil {
		return Result{ChatID: req.ID, Report: report}, fmt.Errorf("chat stream (%s): %w", info.Name, err)
	}

	res := Result{
		ChatID:   req.ID,
		Text:     resp.Text,
		Usage:    models.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
		Provider: info,
		Report:   report,
	}

	// The client may already be gone; the exchange is still saved.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistWait)
	defer cancel()
	if err := s.persist(pctx, userID, req, resp); err != nil {
		s.metrics.PersistFailure()
		s.log.Error("chat persistence failed", "chat_id", req.ID, "user_id", userID, "err", err)
		return res, fmt.Errorf("%w: %w", util.ErrPersistence, err)
	}
	return res, nil
}

func (s *Service) persist(ctx context.Context, userID string, req Request, resp providers.GenerateResponse) error {
	last := req.Messages[len(req.Messages)-1]
	text, _ := LatestUserText(req.Messages)

	owner, err := s.store.EnsureSession(ctx, models.ChatSession{ID: req.ID, UserID: userID, ChatName: SessionName(text)})
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("chat session %s: %w", req.ID, util.ErrNotFound)
	}

	userParts, err := json.Marshal(last.Parts)
	if err != nil {
		return fmt.Errorf("encode user parts: %w", err)
	}
	userMsg := models.ChatMessage{
		ID:      uuid.NewString(),
		ChatID:  req.ID,
		Role:    last.Role,
		Content: text,
		Parts:   userParts,
		Tokens:  resp.Usage.InputTokens,
	}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("store user message: %w", err)
	}

	assistantParts, err := json.Marshal(assistantParts(resp))
	if err != nil {
		return fmt.Errorf("encode assistant parts: %w", err)
	}
	parent := userMsg.ID
	if err := s.store.InsertMessage(ctx, models.ChatMessage{
		ID:       uuid.NewString(),
		ChatID:   req.ID,
		Role:     "assistant",
		Content:  resp.Text,
		Parts:    assistantParts,
		Tokens:   resp.Usage.OutputTokens,
		ParentID: &parent,
	}); err != nil {
		return fmt.Errorf("store assistant message: %w", err)
	}
	return nil
}

// checkOwner rejects a chat id that belongs to another user. Sessions of other
// users are reported as missing.
func (s *Service) checkOwner(ctx context.Context, userID, chatID string) error {
	owner, err := s.store.SessionOwner(ctx, chatID)
	switch {
	case errors.Is(err, util.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("load chat session: %w", err)
	case owner != userID:
		return fmt.Errorf("chat session %s: %w", chatID, util.ErrNotFound)
	}
	return nil
}

func assistantParts(resp providers.GenerateResponse) []Part {
	parts := []Part{{Type: "text", Text: resp.Text}}
	for _, src := range resp.Sources {
		parts = append(parts, Part{Type: "source-url", URL: src.URL, Text: src.Title})
	}
	return parts
}

func (s *Service) record(ctx context.Context, chatID, model string, info providers.ProviderInfo, usage providers.Usage, callErr error) {
	if s.audit == nil {
		return
	}
	rec := storage.LLMCallRecord{
		Operation:    "chat",
		ChatID:       chatID,
		ProviderName: info.Name,
		Model:        model,
		Status:       "ok",
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	if info.Model != "" {
		rec.Model = info.Model
	}
	if callErr != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	if err := s.audit.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("llm call audit failed", "chat_id", chatID, "err", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/auth"
	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/embedstore"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/rag"
	"docchat/internal/util"
)

type ChatService interface {
	Turn(ctx context.Context, userID string, req chat.Request, emit func(providers.StreamEvent) error) (chat.Result, error)
}

type SessionStore interface {
	ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error)
	ListMessages(ctx context.Context, userID, chatID string) ([]models.ChatMessage, error)
	SetFeedback(ctx context.Context, userID, messageID string, liked *bool) error
}

type FileRegistry interface {
	UpsertFile(ctx context.Context, d models.Document) error
	GetFile(ctx context.Context, id string) (models.Document, error)
}

type Embedder interface {
	EnsureEmbedded(ctx context.Context, documentID string) (embedstore.Handle, error)
	Status(ctx context.Context, documentID string) (models.Namespace, error)
}

// Scheduler starts background embedding. Nil disables eager embedding.
type Scheduler interface {
	ScheduleEmbedding(ctx context.Context, documentID string) (string, error)
}

type Authenticator interface {
	Middleware(next http.Handler, onErr func(http.ResponseWriter, error)) http.Handler
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Chat      ChatService
	Sessions  SessionStore
	Files     FileRegistry
	Embedder  Embedder
	Scheduler Scheduler
	Auth      Authenticator
	DB        Pinger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Server struct {
	cfg       config.Config
	chat      ChatService
	sessions  SessionStore
	files     FileRegistry
	embedder  Embedder
	scheduler Scheduler
	auth      Authenticator
	db        Pinger
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		chat:      d.Chat,
		sessions:  d.Sessions,
		files:     d.Files,
		embedder:  d.Embedder,
		scheduler: d.Scheduler,
		auth:      d.Auth,
		db:        d.DB,
		metrics:   d.Metrics,
		log:       d.Logger,
	}
}

func (s *Server) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("POST /api/documents", s.handleRegisterDocument)
	api.HandleFunc("GET /api/documents/{id}", s.handleDocumentStatus)
	api.HandleFunc("POST /api/documents/{id}/embed", s.handleEmbedDocument)
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("GET /api/sessions/{id}/messages", s.handleListMessages)
	api.HandleFunc("POST /api/messages/{id}/feedback", s.handleFeedback)

	var protected http.Handler = api
	if s.auth != nil {
		protected = s.auth.Middleware(api, func(w http.ResponseWriter, err error) {
			writeErr(w, http.StatusUnauthorized, err)
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("/api/", withTimeout(s.cfg.RequestTimeout, protected))
	return withCORS(s.cfg.AllowedOrigin, withRequestLog(s.log, mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if _, err := chat.LatestUserText(req.Messages); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	// The stream opens on the first event so that a turn rejected before any
	// output still gets a plain HTTP error.
	var sse *sseWriter
	open := func() error {
		if sse != nil {
			return nil
		}
		sw, err := newSSEWriter(w)
		if err != nil {
			return err
		}
		sse = sw
		return sse.send("start", map[string]any{"messageId": req.ID})
	}
	res, err := s.chat.Turn(r.Context(), userID, req, func(ev providers.StreamEvent) error {
		if err := open(); err != nil {
			return err
		}
		return sse.send(string(ev.Type), ev)
	})
	if sse == nil && err != nil {
		if status := statusFor(err); status < http.StatusInternalServerError {
			writeErr(w, status, err)
			return
		}
	}
	if oerr := open(); oerr != nil {
		writeErr(w, http.StatusInternalServerError, oerr)
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, util.ErrPersistence):
		// The answer was already delivered; the chat service logged and counted it.
	default:
		s.log.Error("chat turn failed", "chat_id", req.ID, "user_id", userID, "err", err)
		_ = sse.send("error", map[string]any{"errorText": toAPIError(http.StatusBadGateway, err).Message})
	}
	s.log.Info("chat turn", "chat_id", res.ChatID, "provider", res.Provider.Name,
		"input_tokens", res.Usage.InputTokens, "output_tokens", res.Usage.OutputTokens,
		"docs_used", res.Report.Count(rag.DocumentUsed), "docs_failed", res.Report.Count(rag.DocumentFailed))
	sse.done()
}

func (s *Server) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var req models.DocumentRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.URL) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("id and url are required"))
		return
	}
	if req.MimeType == "" {
		req.MimeType = models.MimePDF
	}
	doc := models.Document{ID: req.ID, UserID: userID, Name: req.Name, URL: req.URL, SizeBytes: req.Size, MimeType: req.MimeType}
	if err := s.files.UpsertFile(r.Context(), doc); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	out := map[string]any{"id": doc.ID, "embedding": "on_demand"}
	if s.scheduler != nil && req.IsPDF() {
		wfID, err := s.scheduler.ScheduleEmbedding(r.Context(), doc.ID)
		if err != nil {
			// Embedding still happens on the first chat turn.
			s.log.Warn("schedule embedding failed", "doc_id", doc.ID, "err", err)
		} else {
			out["embedding"] = "scheduled"
			out["workflow_id"] = wfID
		}
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	doc, err := s.files.GetFile(r.Context(), id)
	if err == nil && doc.UserID != userID {
		err = fmt.Errorf("uploaded file %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	ns, err := s.embedder.Status(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "namespace": ns})
}

func (s *Server) handleEmbedDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.user(w, r); !ok {
		return
	}
	h, err := s.embedder.EnsureEmbedded(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	sessions, err := s.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	msgs, err := s.sessions.ListMessages(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		IsLiked *bool `json:"is_liked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := s.sessions.SetFeedback(r.Context(), userID, r.PathValue("id"), req.IsLiked); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("%w: user not authenticated", util.ErrAuth))
		return "", false
	}
	return userID, true
}

func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withRequestLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func withCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if origin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

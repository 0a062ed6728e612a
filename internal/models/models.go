package models

import (
	"encoding/json"
	"time"
)

const MimePDF = "application/pdf"

type NamespaceStatus string

const (
	NamespacePending  NamespaceStatus = "pending"
	NamespaceComplete NamespaceStatus = "complete"
	NamespaceFailed   NamespaceStatus = "failed"
	// NamespaceAbsent is reported for namespaces that were never created.
	NamespaceAbsent NamespaceStatus = ""
)

// Document is an uploaded file. Its ID doubles as the vector namespace key.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size"`
	MimeType  string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentRef is what a chat turn carries for each attached document.
type DocumentRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"type"`
}

func (r DocumentRef) IsPDF() bool {
	return r.MimeType == MimePDF
}

type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type Namespace struct {
	Name       string          `json:"namespace"`
	Status     NamespaceStatus `json:"status"`
	ChunkCount int             `json:"chunk_count"`
	FailReason string          `json:"fail_reason,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ChunkMatch struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type RetrievalResult struct {
	DocumentID string       `json:"document_id"`
	Matches    []ChunkMatch `json:"matches"`
}

type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChatName  string    `json:"chat_name"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Parts     json.RawMessage `json:"parts,omitempty"`
	Tokens    int             `json:"tokens"`
	ParentID  *string         `json:"parent_id,omitempty"`
	IsLiked   *bool           `json:"is_liked,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

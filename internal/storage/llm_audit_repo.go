package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	Operation    string
	DocumentID   string
	ChatID       string
	ProviderName string
	Model        string
	Status       string
	ErrorType    string
	InputTokens  int
	OutputTokens int
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(operation, document_id, chat_id, provider_name, model, status, error_type, input_tokens, output_tokens)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, $6, NULLIF($7,''), $8, $9)`,
		rec.Operation, rec.DocumentID, rec.ChatID, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.InputTokens, rec.OutputTokens)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"docchat/internal/models"
	"docchat/internal/util"
)

// FileRepo is the uploaded-file registry: document id -> public download URL.
type FileRepo struct {
	db *DB
}

func NewFileRepo(db *DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) UpsertFile(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO uploaded_files (id, user_id, file_name, public_url, file_size, mime_type)
VALUES ($1, $2, $3, NULLIF($4,''), $5, $6)
ON CONFLICT (id)
DO UPDATE SET
  file_name = EXCLUDED.file_name,
  public_url = COALESCE(EXCLUDED.public_url, uploaded_files.public_url),
  file_size = EXCLUDED.file_size,
  mime_type = EXCLUDED.mime_type
WHERE uploaded_files.user_id = EXCLUDED.user_id`,
		d.ID, d.UserID, d.Name, d.URL, d.SizeBytes, d.MimeType,
	)
	if err != nil {
		return fmt.Errorf("upsert uploaded file: %w", err)
	}
	return nil
}

func (r *FileRepo) GetFile(ctx context.Context, id string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, user_id, file_name, COALESCE(public_url,''), file_size, mime_type, created_at
FROM uploaded_files
WHERE id=$1`, id).
		Scan(&d.ID, &d.UserID, &d.Name, &d.URL, &d.SizeBytes, &d.MimeType, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("uploaded file %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get uploaded file: %w", err)
	}
	return d, nil
}

// LookupURL returns the registered download URL. A missing row or an empty URL
// is reported as util.ErrNotFound.
func (r *FileRepo) LookupURL(ctx context.Context, id string) (string, error) {
	d, err := r.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(d.URL) == "" {
		return "", fmt.Errorf("download url for %s: %w", id, util.ErrNotFound)
	}
	return d.URL, nil
}

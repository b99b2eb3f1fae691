package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

const uploadedDocumentColumns = `id, session_id, user_id, filename, file_type, file_size, extracted_text, document_type, summary, analysis, relevance, is_active, created_at, updated_at`

type UploadedDocumentRepository struct {
	db *sql.DB
}

func NewUploadedDocumentRepository(db *sql.DB) *UploadedDocumentRepository {
	return &UploadedDocumentRepository{db: db}
}

func (r *UploadedDocumentRepository) Create(ctx context.Context, doc *domain.UploadedDocument) error {
	analysisJSON, err := json.Marshal(doc.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	relevanceJSON, err := json.Marshal(doc.Relevance)
	if err != nil {
		return fmt.Errorf("marshal relevance: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO uploaded_documents (`+uploadedDocumentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.SessionID, doc.UserID, doc.Filename, doc.FileType, doc.FileSize, doc.ExtractedText,
		doc.DocumentType, doc.Summary, analysisJSON, relevanceJSON, doc.IsActive, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert uploaded document: %w", err)
	}
	return nil
}

func (r *UploadedDocumentRepository) GetByID(ctx context.Context, id string) (*domain.UploadedDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+uploadedDocumentColumns+`
FROM uploaded_documents
WHERE id = $1
`, id)

	doc, err := scanUploadedDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get uploaded document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *UploadedDocumentRepository) ListActiveBySession(ctx context.Context, sessionID, userID string) ([]domain.UploadedDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+uploadedDocumentColumns+`
FROM uploaded_documents
WHERE session_id = $1 AND user_id = $2 AND is_active
ORDER BY created_at ASC
`, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list uploaded documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UploadedDocument, 0)
	for rows.Next() {
		doc, err := scanUploadedDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploaded documents: %w", err)
	}
	return out, nil
}

func (r *UploadedDocumentRepository) Deactivate(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE uploaded_documents
SET is_active = FALSE, updated_at = $3
WHERE id = $1 AND user_id = $2 AND is_active
`, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate uploaded document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate uploaded document rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "deactivate uploaded document", fmt.Errorf("id=%s", id))
	}
	return nil
}

// PurgeExpired hard-deletes uploads created before the cutoff, active or not.
func (r *UploadedDocumentRepository) PurgeExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM uploaded_documents WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("purge uploaded documents: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge uploaded documents rows affected: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUploadedDocument(row rowScanner) (*domain.UploadedDocument, error) {
	var doc domain.UploadedDocument
	var analysisRaw, relevanceRaw []byte
	err := row.Scan(
		&doc.ID, &doc.SessionID, &doc.UserID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ExtractedText,
		&doc.DocumentType, &doc.Summary, &analysisRaw, &relevanceRaw, &doc.IsActive, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan uploaded document: %w", err)
	}
	if err := json.Unmarshal(analysisRaw, &doc.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	if err := json.Unmarshal(relevanceRaw, &doc.Relevance); err != nil {
		return nil, fmt.Errorf("unmarshal relevance: %w", err)
	}
	return &doc, nil
}

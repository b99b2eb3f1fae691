package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

// ChunkRepository keeps the relational copy of ingested legislation.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceSource swaps every stored chunk of sourceURL in one transaction.
func (r *ChunkRepository) ReplaceSource(ctx context.Context, sourceURL string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM legislation_chunks WHERE source_url = $1`, sourceURL); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO legislation_chunks (
	id, source_url, act_title, legislation_type, legislation_year, section_context, chunk_index, total_chunks, text, ingested_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, sourceURL, ch.ActTitle, ch.LegislationType, ch.LegislationYear,
			ch.SectionContext, ch.ChunkIndex, ch.TotalChunks, ch.Text, now,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

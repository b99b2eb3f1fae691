package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

func TestReplaceSourceDeletesThenInsertsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChunkRepository(db)

	chunks := []domain.Chunk{
		{ID: "u-chunk-0", ActTitle: "Equality Act 2010", LegislationType: "equality", LegislationYear: 2010, SectionContext: "Part 1", ChunkIndex: 0, TotalChunks: 2, Text: "a"},
		{ID: "u-chunk-1", ActTitle: "Equality Act 2010", LegislationType: "equality", LegislationYear: 2010, SectionContext: "Part 2", ChunkIndex: 1, TotalChunks: 2, Text: "b"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM legislation_chunks").WithArgs("u").WillReturnResult(sqlmock.NewResult(0, 5))
	prep := mock.ExpectPrepare("INSERT INTO legislation_chunks")
	for _, ch := range chunks {
		prep.ExpectExec().
			WithArgs(ch.ID, "u", ch.ActTitle, ch.LegislationType, ch.LegislationYear, ch.SectionContext, ch.ChunkIndex, ch.TotalChunks, ch.Text, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.ReplaceSource(context.Background(), "u", chunks); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceSourceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChunkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM legislation_chunks").WithArgs("u").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO legislation_chunks").
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = repo.ReplaceSource(context.Background(), "u", []domain.Chunk{{ID: "u-chunk-0", Text: "a"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

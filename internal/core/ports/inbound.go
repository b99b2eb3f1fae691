package ports

import (
	"context"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

// LegislationIngestor is the inbound contract for batch corpus ingestion.
type LegislationIngestor interface {
	Ingest(ctx context.Context, sources []domain.LegislationSource) (domain.IngestReport, error)
	IngestSource(ctx context.Context, source domain.LegislationSource) (int, error)
}

// IngestScheduler queues sources for asynchronous ingestion.
type IngestScheduler interface {
	Schedule(ctx context.Context, sources []domain.LegislationSource) (int, error)
}

// LegalAnswerer answers a single question within a session.
type LegalAnswerer interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
}

// ChatService answers and records a conversational exchange.
type ChatService interface {
	Chat(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
	History(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error)
}

// DocumentService is the inbound contract for user uploads.
type DocumentService interface {
	ClassifyUpload(rawText, filename string) domain.RelevanceAssessment
	ProcessUploads(ctx context.Context, sessionID, userID string, files []domain.UploadFile) []domain.UploadResult
	ListDocuments(ctx context.Context, sessionID, userID string) ([]domain.UploadedDocument, error)
	DeactivateDocument(ctx context.Context, id, userID string) error
	BuildDocumentContext(ctx context.Context, sessionID, userID, query string) (string, bool, error)
}

package ports

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

// UploadedDocumentRepository persists accepted uploads.
type UploadedDocumentRepository interface {
	Create(ctx context.Context, doc *domain.UploadedDocument) error
	GetByID(ctx context.Context, id string) (*domain.UploadedDocument, error)
	ListActiveBySession(ctx context.Context, sessionID, userID string) ([]domain.UploadedDocument, error)
	Deactivate(ctx context.Context, id, userID string) error
	PurgeExpired(ctx context.Context, createdBefore time.Time) (int64, error)
}

// ChunkRepository keeps a relational copy of the ingested corpus.
type ChunkRepository interface {
	ReplaceSource(ctx context.Context, sourceURL string, chunks []domain.Chunk) error
}

// ChatHistoryStore persists conversation messages.
type ChatHistoryStore interface {
	AppendMessage(ctx context.Context, message domain.ChatMessage) error
	ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatMessage, error)
}

// ObjectStorage stores raw source snapshots.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// IngestQueue publishes/consumes legislation ingestion jobs.
type IngestQueue interface {
	PublishLegislationSource(ctx context.Context, source domain.LegislationSource) error
	SubscribeLegislationSources(ctx context.Context, handler func(context.Context, domain.LegislationSource) error) error
}

// LegislationFetcher downloads the XML rendition of an act.
type LegislationFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LegislationChunker turns legislative XML into context-tagged chunks.
type LegislationChunker interface {
	Chunk(xmlDocument io.Reader, source domain.LegislationSource) ([]domain.Chunk, error)
}

// TextExtractor recovers plain text from uploaded file bytes.
type TextExtractor interface {
	// Supports reports whether filename has a readable format; it needs no bytes.
	Supports(filename string) bool
	Extract(ctx context.Context, filename string, data []byte) (domain.ExtractedText, error)
}

// RelevanceClassifier scores text against the UK legal lexicon. Pure.
type RelevanceClassifier interface {
	Classify(text, filename string) domain.RelevanceAssessment
}

// DocumentAnalyzer derives document type and key elements. Pure.
type DocumentAnalyzer interface {
	Analyze(text string) domain.DocumentAnalysis
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes chunks and performs filtered semantic search.
type VectorStore interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	// PruneSource removes points of sourceURL whose chunk index is at or
	// beyond keepChunks; zero removes the whole source.
	PruneSource(ctx context.Context, sourceURL string, keepChunks int) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error)
}

// ChatCompleter is the generative model boundary.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt string, history []domain.Turn, humanPrompt string) (string, error)
}

// SessionStore owns per-session conversational memory.
type SessionStore interface {
	// Open returns the memory for sessionID, seeding it from prior turns
	// when the session is not yet known.
	Open(sessionID string, prior []domain.Turn) SessionMemory
	Evict(sessionID string)
}

// SessionMemory is locked by callers for the duration of one exchange.
type SessionMemory interface {
	sync.Locker
	Turns() []domain.Turn
	Append(turns ...domain.Turn)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const summaryInputChars = 2000

const summarySystemPrompt = "You summarise UK legal documents accurately and briefly."

type UploadConfig struct {
	MaxFiles     int
	MaxFileBytes int64
	MinTextChars int
	TTL          time.Duration
	Context      ContextConfig
}

func (c UploadConfig) withDefaults() UploadConfig {
	if c.MaxFiles <= 0 {
		c.MaxFiles = 5
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 10 << 20
	}
	if c.MinTextChars <= 0 {
		c.MinTextChars = 50
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	c.Context = c.Context.withDefaults()
	return c
}

// DocumentUseCase accepts, lists and expires user uploads.
type DocumentUseCase struct {
	repo       ports.UploadedDocumentRepository
	extractor  ports.TextExtractor
	classifier ports.RelevanceClassifier
	analyzer   ports.DocumentAnalyzer
	completer  ports.ChatCompleter
	lex        *lexicon.Lexicon
	cfg        UploadConfig
	now        func() time.Time
}

func NewDocumentUseCase(
	repo ports.UploadedDocumentRepository,
	extractor ports.TextExtractor,
	classifier ports.RelevanceClassifier,
	analyzer ports.DocumentAnalyzer,
	completer ports.ChatCompleter,
	lex *lexicon.Lexicon,
	cfg UploadConfig,
) *DocumentUseCase {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &DocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		classifier: classifier,
		analyzer:   analyzer,
		completer:  completer,
		lex:        lex,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DocumentUseCase) ClassifyUpload(rawText, filename string) domain.RelevanceAssessment {
	return uc.classifier.Classify(rawText, filename)
}

// ProcessUploads handles each file independently; one failure never stops
// its siblings.
func (uc *DocumentUseCase) ProcessUploads(ctx context.Context, sessionID, userID string, files []domain.UploadFile) []domain.UploadResult {
	results := make([]domain.UploadResult, 0, len(files))
	for i, file := range files {
		filename := filepath.Base(strings.TrimSpace(file.Filename))
		if i >= uc.cfg.MaxFiles {
			results = append(results, domain.UploadResult{
				Filename: filename,
				Err: domain.WrapError(domain.ErrInvalidInput, "process upload",
					fmt.Errorf("at most %d files per request", uc.cfg.MaxFiles)),
			})
			continue
		}
		doc, err := uc.processOne(ctx, sessionID, userID, filename, file.Data)
		if err != nil {
			var irrelevant *domain.IrrelevantDocumentError
			if errors.As(err, &irrelevant) {
				slog.Info("document_rejected",
					"session_id", sessionID,
					"filename", filename,
					"score", irrelevant.Assessment.Score,
				)
			} else {
				slog.Warn("document_upload_failed",
					"session_id", sessionID,
					"filename", filename,
					"error", err.Error(),
				)
			}
		}
		results = append(results, domain.UploadResult{Filename: filename, Document: doc, Err: err})
	}
	return results
}

func (uc *DocumentUseCase) processOne(ctx context.Context, sessionID, userID, filename string, data []byte) (*domain.UploadedDocument, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process upload", errors.New("session_id and user_id are required"))
	}
	if filename == "" || filename == "." {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process upload", errors.New("filename is required"))
	}
	if !uc.extractor.Supports(filename) {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "process upload",
			fmt.Errorf("%s is not a pdf, doc, docx, txt or xlsx file", filename))
	}
	if int64(len(data)) > uc.cfg.MaxFileBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process upload",
			fmt.Errorf("%s exceeds %d bytes", filename, uc.cfg.MaxFileBytes))
	}

	extracted, err := uc.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	if nonSpaceChars(extracted.Text) < uc.cfg.MinTextChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process upload",
			fmt.Errorf("%s appears to be empty or too short", filename))
	}

	assessment := uc.classifier.Classify(extracted.Text, filename)
	if !assessment.IsRelevant {
		return nil, &domain.IrrelevantDocumentError{Filename: filename, Assessment: assessment}
	}

	analysis := uc.analyzer.Analyze(extracted.Text)
	summary, err := uc.summarize(ctx, filename, extracted.Text)
	if err != nil {
		return nil, err
	}
	return uc.registerDocument(ctx, sessionID, userID, filename, int64(len(data)), extracted, analysis, assessment, summary)
}

func (uc *DocumentUseCase) summarize(ctx context.Context, filename, text string) (string, error) {
	prompt := "Analyse this legal document and give a concise 2-3 sentence summary covering:\n" +
		"1. Document type and purpose\n" +
		"2. Key terms, amounts, dates or obligations\n" +
		"3. The most important legal provisions\n\n" +
		"Document: " + filename + "\n" +
		"Content: " + truncateBytes(text, summaryInputChars) + "...\n\n" +
		"Provide a brief, factual summary:"

	summary, err := uc.completer.Complete(ctx, summarySystemPrompt, nil, prompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationFailure, "summarise document", err)
	}
	return strings.TrimSpace(summary), nil
}

func (uc *DocumentUseCase) registerDocument(
	ctx context.Context,
	sessionID, userID, filename string,
	size int64,
	extracted domain.ExtractedText,
	analysis domain.DocumentAnalysis,
	assessment domain.RelevanceAssessment,
	summary string,
) (*domain.UploadedDocument, error) {
	now := uc.now()
	docType := analysis.DocumentType
	if docType == "" {
		docType = domain.DocumentTypeUnknown
	}
	doc := &domain.UploadedDocument{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		UserID:        userID,
		Filename:      filename,
		FileType:      extracted.FileType,
		FileSize:      size,
		ExtractedText: extracted.Text,
		DocumentType:  docType,
		Summary:       summary,
		Analysis:      analysis,
		Relevance:     assessment,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create uploaded document: %w", err)
	}
	return doc, nil
}

func (uc *DocumentUseCase) ListDocuments(ctx context.Context, sessionID, userID string) ([]domain.UploadedDocument, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("session_id and user_id are required"))
	}
	docs, err := uc.repo.ListActiveBySession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list uploaded documents: %w", err)
	}
	return docs, nil
}

func (uc *DocumentUseCase) DeactivateDocument(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(userID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "deactivate document", errors.New("id and user_id are required"))
	}
	return uc.repo.Deactivate(ctx, id, userID)
}

// BuildDocumentContext returns the budgeted context blob for the session's
// active uploads, or false when there are none.
func (uc *DocumentUseCase) BuildDocumentContext(ctx context.Context, sessionID, userID, query string) (string, bool, error) {
	docs, err := uc.ListDocuments(ctx, sessionID, userID)
	if err != nil {
		return "", false, err
	}
	blob, ok := assembleDocumentContext(docs, query, uc.cfg.Context.TokenBudget, uc.cfg.Context.QueryReserveTokens)
	return blob, ok, nil
}

// PurgeExpired removes uploads older than the configured TTL.
func (uc *DocumentUseCase) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := uc.now().Add(-uc.cfg.TTL)
	n, err := uc.repo.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired documents: %w", err)
	}
	if n > 0 {
		slog.Info("expired_documents_purged", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func nonSpaceChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

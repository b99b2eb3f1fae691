package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

var rejectedReferencePattern = regexp.MustCompile(`(?i)\b(this document|the document|this file|the file|this contract|the contract|uploaded document)\b`)

type ContextConfig struct {
	TokenBudget        int
	QueryReserveTokens int
}

func (c ContextConfig) withDefaults() ContextConfig {
	if c.TokenBudget <= 0 {
		c.TokenBudget = 6000
	}
	if c.QueryReserveTokens < 0 {
		c.QueryReserveTokens = 0
	}
	return c
}

// AnswerUseCase routes a question to document, grounded or fallback answering
// and records the exchange in session memory.
type AnswerUseCase struct {
	retrieval *RetrievalUseCase
	completer ports.ChatCompleter
	sessions  ports.SessionStore
	documents ports.UploadedDocumentRepository
	lex       *lexicon.Lexicon
	context   ContextConfig
}

func NewAnswerUseCase(
	retrieval *RetrievalUseCase,
	completer ports.ChatCompleter,
	sessions ports.SessionStore,
	documents ports.UploadedDocumentRepository,
	lex *lexicon.Lexicon,
	contextCfg ContextConfig,
) *AnswerUseCase {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &AnswerUseCase{
		retrieval: retrieval,
		completer: completer,
		sessions:  sessions,
		documents: documents,
		lex:       lex,
		context:   contextCfg.withDefaults(),
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("query is required"))
	}

	if len(req.RejectedUploads) > 0 && !req.HasValidUploads && rejectedReferencePattern.MatchString(query) {
		return &domain.Answer{
			Text:    rejectedDocumentsReply(req.RejectedUploads),
			Mode:    domain.ModeRejected,
			Sources: []string{},
		}, nil
	}

	memory := uc.openMemory(req)
	memory.Lock()
	defer memory.Unlock()

	docs := uc.sessionDocuments(ctx, req.SessionID, req.UserID)
	if isQueryAboutDocuments(query, docs, uc.lex) {
		if blob, ok := assembleDocumentContext(docs, query, uc.context.TokenBudget, uc.context.QueryReserveTokens); ok {
			text, err := uc.complete(ctx, memory, documentSystemPrompt(), documentHumanPrompt(query, blob), query)
			if err != nil {
				return nil, err
			}
			return &domain.Answer{
				Text:     text,
				Mode:     domain.ModeDocument,
				Evidence: domain.EvidenceSet{},
				Sources:  uploadSources(docs),
			}, nil
		}
	}

	outcome, err := uc.retrieval.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	filenames := documentFilenames(docs)

	answer := &domain.Answer{
		Mode:      outcome.Mode,
		Threshold: outcome.Threshold,
		BestScore: outcome.Candidates.BestScore(),
		TimedOut:  outcome.TimedOut,
		Evidence:  domain.EvidenceSet{},
		Sources:   []string{},
	}

	var systemPrompt, humanPrompt string
	if outcome.Mode == domain.ModeGrounded {
		systemPrompt = groundedSystemPrompt(outcome.ContextSummary, filenames)
		humanPrompt = groundedHumanPrompt(query, outcome.Evidence)
		answer.Evidence = outcome.Evidence
		answer.Sources = formatSources(outcome.Evidence)
	} else {
		systemPrompt = fallbackSystemPrompt(outcome.Category, filenames)
		humanPrompt = fallbackHumanPrompt(query, outcome.Hints)
		answer.Category = outcome.Category
	}

	text, err := uc.complete(ctx, memory, systemPrompt, humanPrompt, query)
	if err != nil {
		return nil, err
	}
	answer.Text = text
	return answer, nil
}

// complete calls the model with the session history and, on success, appends
// the user turn and then the answer turn.
func (uc *AnswerUseCase) complete(ctx context.Context, memory ports.SessionMemory, systemPrompt, humanPrompt, query string) (string, error) {
	text, err := uc.completer.Complete(ctx, systemPrompt, memory.Turns(), humanPrompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationFailure, "complete answer", err)
	}
	memory.Append(
		domain.Turn{Role: domain.RoleHuman, Text: query},
		domain.Turn{Role: domain.RoleAI, Text: text},
	)
	return text, nil
}

func (uc *AnswerUseCase) openMemory(req domain.AnswerRequest) ports.SessionMemory {
	if strings.TrimSpace(req.SessionID) == "" || uc.sessions == nil {
		return &transientMemory{turns: append([]domain.Turn(nil), req.PriorTurns...)}
	}
	return uc.sessions.Open(req.SessionID, req.PriorTurns)
}

func (uc *AnswerUseCase) sessionDocuments(ctx context.Context, sessionID, userID string) []domain.UploadedDocument {
	if uc.documents == nil || sessionID == "" || userID == "" {
		return nil
	}
	docs, err := uc.documents.ListActiveBySession(ctx, sessionID, userID)
	if err != nil {
		slog.Warn("session_documents_unavailable",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return nil
	}
	return docs
}

func documentFilenames(docs []domain.UploadedDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Filename)
	}
	return out
}

// transientMemory serves requests without a session id.
type transientMemory struct {
	sync.Mutex
	turns []domain.Turn
}

func (m *transientMemory) Turns() []domain.Turn {
	return append([]domain.Turn(nil), m.turns...)
}

func (m *transientMemory) Append(turns ...domain.Turn) {
	m.turns = append(m.turns, turns...)
}

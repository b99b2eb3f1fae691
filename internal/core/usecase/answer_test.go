package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

type answerFixture struct {
	store     *vectorStoreFake
	completer *completerFake
	sessions  *sessionStoreFake
	docs      *documentRepoFake
	uc        *AnswerUseCase
}

func newAnswerFixture(results []domain.RetrievalCandidate) *answerFixture {
	f := &answerFixture{
		store: &vectorStoreFake{
			search: func(context.Context, domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
				return results, nil
			},
		},
		completer: &completerFake{reply: "model answer"},
		sessions:  newSessionStoreFake(),
		docs:      &documentRepoFake{},
	}
	lex := lexicon.Default()
	retrieval := NewRetrievalUseCase(&embedderFake{}, f.store, lex, RetrievalConfig{})
	f.uc = NewAnswerUseCase(retrieval, f.completer, f.sessions, f.docs, lex, ContextConfig{})
	return f
}

func TestAnswerGroundedCitesSourcesAndAppendsTurnsInOrder(t *testing.T) {
	era := candidate("era-1", "Employment Rights Act 1996", "employment", 0.82)
	era.Chunk.LegislationYear = 1996
	era.Chunk.SectionContext = "Part 10"
	eraGeneral := candidate("era-2", "Employment Rights Act 1996", "employment", 0.75)
	eraGeneral.Chunk.LegislationYear = 1996
	duplicate := candidate("era-3", "Employment Rights Act 1996", "employment", 0.74)
	duplicate.Chunk.LegislationYear = 1996
	duplicate.Chunk.SectionContext = "Part 10"
	f := newAnswerFixture([]domain.RetrievalCandidate{era, eraGeneral, duplicate})

	prior := []domain.Turn{{Role: domain.RoleHuman, Text: "hello"}, {Role: domain.RoleAI, Text: "hi"}}
	answer, err := f.uc.Answer(context.Background(), domain.AnswerRequest{
		Query:      "unfair dismissal rules",
		SessionID:  "s-1",
		UserID:     "u-1",
		PriorTurns: prior,
	})
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if answer.Mode != domain.ModeGrounded {
		t.Fatalf("expected grounded mode, got %s", answer.Mode)
	}
	wantSources := []string{"Employment Rights Act 1996 (1996) - Part 10", "Employment Rights Act 1996 (1996)"}
	if strings.Join(answer.Sources, "|") != strings.Join(wantSources, "|") {
		t.Fatalf("unexpected sources: %v", answer.Sources)
	}
	if len(answer.Evidence) != 3 {
		t.Fatalf("expected 3 evidence items, got %d", len(answer.Evidence))
	}

	call := f.completer.calls[0]
	if len(call.history) != 2 {
		t.Fatalf("expected prior turns as history, got %d", len(call.history))
	}
	if !strings.Contains(call.system, "CONTEXT: You have access to relevant provisions from: employment: Employment Rights Act 1996") {
		t.Fatalf("system prompt missing context summary: %q", call.system)
	}
	if !strings.Contains(call.human, "text of era-1") {
		t.Fatalf("human prompt missing provisions: %q", call.human)
	}

	turns := f.sessions.sessions["s-1"].turns
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns in memory, got %d", len(turns))
	}
	if turns[2].Role != domain.RoleHuman || turns[2].Text != "unfair dismissal rules" {
		t.Fatalf("expected user turn first, got %+v", turns[2])
	}
	if turns[3].Role != domain.RoleAI || turns[3].Text != "model answer" {
		t.Fatalf("expected answer turn second, got %+v", turns[3])
	}
}

func TestAnswerFallbackUsesHintsAndCategory(t *testing.T) {
	f := newAnswerFixture([]domain.RetrievalCandidate{
		candidate("era-1", "Employment Rights Act 1996", "employment", 0.68),
	})

	answer, err := f.uc.Answer(context.Background(), domain.AnswerRequest{Query: "Can I be fired without notice?", SessionID: "s-2"})
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if answer.Mode != domain.ModeFallback {
		t.Fatalf("expected fallback mode, got %s", answer.Mode)
	}
	if answer.Category != "employment law" {
		t.Fatalf("expected employment law category, got %q", answer.Category)
	}
	if len(answer.Sources) != 0 || len(answer.Evidence) != 0 {
		t.Fatalf("fallback must not cite hints: %+v", answer)
	}
	if answer.BestScore != 0.68 {
		t.Fatalf("expected best score 0.68, got %v", answer.BestScore)
	}
	call := f.completer.calls[0]
	if !strings.Contains(call.human, "Some potentially relevant context:\nFrom Employment Rights Act 1996: text of era-1...") {
		t.Fatalf("fallback prompt missing hints: %q", call.human)
	}
	if !strings.Contains(call.system, "relate to employment law") {
		t.Fatalf("fallback system prompt missing category: %q", call.system)
	}
}

func TestAnswerGenerationFailureLeavesMemoryUntouched(t *testing.T) {
	f := newAnswerFixture(nil)
	f.completer.err = errors.New("model unavailable")

	_, err := f.uc.Answer(context.Background(), domain.AnswerRequest{Query: "holiday pay", SessionID: "s-3"})
	if !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if turns := f.sessions.sessions["s-3"].turns; len(turns) != 0 {
		t.Fatalf("expected no turns after failure, got %d", len(turns))
	}
}

func TestAnswerRetrievalFailureIsNotFallback(t *testing.T) {
	f := newAnswerFixture(nil)
	f.store.search = func(context.Context, domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
		return nil, errors.New("qdrant down")
	}

	_, err := f.uc.Answer(context.Background(), domain.AnswerRequest{Query: "holiday pay", SessionID: "s-4"})
	if !errors.Is(err, domain.ErrRetrievalFailure) {
		t.Fatalf("expected retrieval failure, got %v", err)
	}
	if len(f.completer.calls) != 0 {
		t.Fatalf("model must not be called after retrieval failure")
	}
}

func TestAnswerRejectedDocumentsSkipsModel(t *testing.T) {
	f := newAnswerFixture(nil)

	answer, err := f.uc.Answer(context.Background(), domain.AnswerRequest{
		Query:           "What does this document say?",
		SessionID:       "s-5",
		RejectedUploads: []string{"brochure.pdf", "menu.txt"},
	})
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if answer.Mode != domain.ModeRejected {
		t.Fatalf("expected rejected mode, got %s", answer.Mode)
	}
	if !strings.Contains(answer.Text, "(brochure.pdf, menu.txt)") {
		t.Fatalf("reply should list rejected files: %q", answer.Text)
	}
	if len(f.completer.calls) != 0 || len(f.store.calls) != 0 {
		t.Fatalf("rejected reply must not call model or index")
	}
}

func TestAnswerDocumentModeUsesUploadedContext(t *testing.T) {
	f := newAnswerFixture(nil)
	f.docs.docs = []domain.UploadedDocument{{
		ID:            "d-1",
		Filename:      "contract.txt",
		DocumentType:  "uk_employment_contract",
		Summary:       "Employment contract with a four week notice period.",
		ExtractedText: "The employee must give four weeks notice of resignation.",
	}}

	answer, err := f.uc.Answer(context.Background(), domain.AnswerRequest{
		Query:     "What notice does this contract require?",
		SessionID: "s-6",
		UserID:    "u-6",
	})
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if answer.Mode != domain.ModeDocument {
		t.Fatalf("expected document mode, got %s", answer.Mode)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "Uploaded: contract.txt" {
		t.Fatalf("unexpected sources: %v", answer.Sources)
	}
	if !strings.Contains(f.completer.calls[0].human, "CONTENT FROM CONTRACT.TXT:") {
		t.Fatalf("document prompt missing content: %q", f.completer.calls[0].human)
	}
	if len(f.store.calls) != 0 {
		t.Fatalf("document mode must not search legislation")
	}
}

func TestAnswerWithoutSessionDoesNotRemember(t *testing.T) {
	f := newAnswerFixture(nil)
	if _, err := f.uc.Answer(context.Background(), domain.AnswerRequest{Query: "holiday pay"}); err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatalf("expected no session to be created")
	}
}

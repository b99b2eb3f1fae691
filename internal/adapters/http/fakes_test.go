package httpadapter

import (
	"context"
	"net/http"

	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

type chatFake struct {
	req     domain.AnswerRequest
	answer  *domain.Answer
	history []domain.ChatMessage
	err     error
}

func (f *chatFake) Chat(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: "ok", Mode: domain.ModeFallback, Sources: []string{}}, nil
}

func (f *chatFake) History(_ context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type documentsFake struct {
	files      []domain.UploadFile
	sessionID  string
	results    []domain.UploadResult
	docs       []domain.UploadedDocument
	deleted    string
	err        error
	assessment domain.RelevanceAssessment
}

func (f *documentsFake) ClassifyUpload(string, string) domain.RelevanceAssessment {
	return f.assessment
}

func (f *documentsFake) ProcessUploads(_ context.Context, sessionID, _ string, files []domain.UploadFile) []domain.UploadResult {
	f.sessionID = sessionID
	f.files = files
	return f.results
}

func (f *documentsFake) ListDocuments(context.Context, string, string) ([]domain.UploadedDocument, error) {
	return f.docs, f.err
}

func (f *documentsFake) DeactivateDocument(_ context.Context, id, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

func (f *documentsFake) BuildDocumentContext(context.Context, string, string, string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return "UPLOADED DOCUMENTS OVERVIEW:\n", true, nil
}

type schedulerFake struct {
	sources []domain.LegislationSource
	err     error
}

func (f *schedulerFake) Schedule(_ context.Context, sources []domain.LegislationSource) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.sources = sources
	return len(sources), nil
}

func newTestHandler(cfg config.Config, chat *chatFake, docs *documentsFake, scheduler *schedulerFake) http.Handler {
	if chat == nil {
		chat = &chatFake{}
	}
	if docs == nil {
		docs = &documentsFake{}
	}
	if scheduler == nil {
		scheduler = &schedulerFake{}
	}
	return NewRouter(cfg, chat, docs, scheduler, nil).Handler()
}

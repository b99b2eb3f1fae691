package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

type uploadExtractorFake struct {
	texts     map[string]string
	errs      map[string]error
	extracted []string
}

func (f *uploadExtractorFake) Supports(filename string) bool {
	return !strings.HasSuffix(filename, ".exe")
}

func (f *uploadExtractorFake) Extract(_ context.Context, filename string, _ []byte) (domain.ExtractedText, error) {
	f.extracted = append(f.extracted, filename)
	if err := f.errs[filename]; err != nil {
		return domain.ExtractedText{}, err
	}
	return domain.ExtractedText{Text: f.texts[filename], FileType: "txt", Pages: 1}, nil
}

type relevanceFake struct {
	relevant map[string]bool
}

func (f *relevanceFake) Classify(_ string, filename string) domain.RelevanceAssessment {
	if f.relevant[filename] {
		return domain.RelevanceAssessment{IsRelevant: true, Score: 20, HasStrongIndicator: true, Warnings: []string{}}
	}
	return domain.RelevanceAssessment{
		Score:       2,
		Warnings:    []string{"Document lacks clear UK legal indicators"},
		Suggestions: []string{"Verify document is in English and uses UK legal language"},
	}
}

type analyzerFake struct{}

func (analyzerFake) Analyze(text string) domain.DocumentAnalysis {
	return domain.DocumentAnalysis{DocumentType: "uk_employment_contract", WordCount: len(strings.Fields(text))}
}

const contractText = "This contract of employment is governed by the Employment Rights Act 1996 and the laws of England."

func newDocumentFixture() (*DocumentUseCase, *documentRepoFake, *uploadExtractorFake, *completerFake) {
	repo := &documentRepoFake{}
	extractor := &uploadExtractorFake{texts: map[string]string{}, errs: map[string]error{}}
	completer := &completerFake{reply: "  A standard UK employment contract.  "}
	uc := NewDocumentUseCase(repo, extractor, &relevanceFake{relevant: map[string]bool{"contract.txt": true}},
		analyzerFake{}, completer, nil, UploadConfig{MaxFiles: 2})
	return uc, repo, extractor, completer
}

func TestProcessUploadsRegistersRelevantDocument(t *testing.T) {
	uc, repo, extractor, completer := newDocumentFixture()
	extractor.texts["contract.txt"] = contractText

	results := uc.ProcessUploads(context.Background(), "s-1", "u-1", []domain.UploadFile{{Filename: "contract.txt", Data: []byte("x")}})
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	doc := results[0].Document
	if doc == nil || doc.ID == "" || !doc.IsActive {
		t.Fatalf("expected an active document with id, got %+v", doc)
	}
	if doc.Summary != "A standard UK employment contract." {
		t.Fatalf("unexpected summary %q", doc.Summary)
	}
	if doc.DocumentType != "uk_employment_contract" || !doc.Relevance.IsRelevant {
		t.Fatalf("analysis or assessment not recorded: %+v", doc)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one persisted document, got %d", len(repo.created))
	}
	if !strings.Contains(completer.calls[0].human, "Document: contract.txt") {
		t.Fatalf("summary prompt missing filename: %q", completer.calls[0].human)
	}
}

func TestProcessUploadsFailuresArePerFile(t *testing.T) {
	uc, repo, extractor, _ := newDocumentFixture()
	extractor.texts["brochure.txt"] = strings.Repeat("Our new summer range is bright and colourful. ", 5)
	extractor.texts["contract.txt"] = contractText
	extractor.errs["broken.pdf"] = domain.WrapError(domain.ErrExtractionFailure, "extract text", errors.New("bad xref"))

	results := uc.ProcessUploads(context.Background(), "s-1", "u-1", []domain.UploadFile{
		{Filename: "brochure.txt"},
		{Filename: "contract.txt"},
		{Filename: "broken.pdf"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var irrelevant *domain.IrrelevantDocumentError
	if !errors.As(results[0].Err, &irrelevant) {
		t.Fatalf("expected irrelevant document error, got %v", results[0].Err)
	}
	if len(irrelevant.Assessment.Warnings) == 0 || len(irrelevant.Assessment.Suggestions) == 0 {
		t.Fatalf("rejection must explain itself: %+v", irrelevant.Assessment)
	}
	if results[1].Err != nil || results[1].Document == nil {
		t.Fatalf("sibling upload should succeed, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, domain.ErrInvalidInput) {
		t.Fatalf("expected file limit error for third file, got %v", results[2].Err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("only the relevant document may be stored, got %d", len(repo.created))
	}
}

func TestProcessUploadsRejectsShortAndOversizeFiles(t *testing.T) {
	uc, _, extractor, _ := newDocumentFixture()
	extractor.texts["contract.txt"] = "  too   short  "

	results := uc.ProcessUploads(context.Background(), "s-1", "u-1", []domain.UploadFile{
		{Filename: "contract.txt"},
		{Filename: "big.txt", Data: make([]byte, 10<<20+1)},
	})
	for i, r := range results {
		if !errors.Is(r.Err, domain.ErrInvalidInput) {
			t.Fatalf("result %d: expected invalid input, got %v", i, r.Err)
		}
	}
}

func TestProcessUploadsSummaryFailureIsGenerationFailure(t *testing.T) {
	uc, repo, extractor, completer := newDocumentFixture()
	extractor.texts["contract.txt"] = contractText
	completer.err = errors.New("timeout")

	results := uc.ProcessUploads(context.Background(), "s-1", "u-1", []domain.UploadFile{{Filename: "contract.txt"}})
	if !errors.Is(results[0].Err, domain.ErrGenerationFailure) {
		t.Fatalf("expected generation failure, got %v", results[0].Err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("nothing may be stored after a failed summary")
	}
}

func TestBuildDocumentContextAndPurge(t *testing.T) {
	uc, repo, _, _ := newDocumentFixture()
	repo.docs = []domain.UploadedDocument{{Filename: "contract.txt", DocumentType: "uk_employment_contract", Summary: "Contract.", ExtractedText: contractText}}
	repo.purgeCount = 2
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return fixed }

	blob, ok, err := uc.BuildDocumentContext(context.Background(), "s-1", "u-1", "employment contract terms")
	if err != nil || !ok {
		t.Fatalf("expected context, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(blob, "CONTENT FROM CONTRACT.TXT:") {
		t.Fatalf("context missing document content: %q", blob)
	}

	n, err := uc.PurgeExpired(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("unexpected purge result n=%d err=%v", n, err)
	}
	if !repo.purgedTo.Equal(fixed.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected purge cutoff %v", repo.purgedTo)
	}
}

func TestDeactivateDocumentRequiresOwner(t *testing.T) {
	uc, repo, _, _ := newDocumentFixture()
	if err := uc.DeactivateDocument(context.Background(), "d-1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := uc.DeactivateDocument(context.Background(), "d-1", "u-1"); err != nil {
		t.Fatalf("DeactivateDocument returned error: %v", err)
	}
	if len(repo.deactivate) != 1 || repo.deactivate[0] != "d-1" {
		t.Fatalf("expected d-1 to be deactivated, got %v", repo.deactivate)
	}
}

func TestProcessUploadsRejectsUnsupportedFormatBeforeExtraction(t *testing.T) {
	uc, repo, extractor, _ := newDocumentFixture()

	results := uc.ProcessUploads(context.Background(), "s-1", "u-1", []domain.UploadFile{
		{Filename: "setup.exe", Data: make([]byte, 10<<20+1)},
	})
	if !errors.Is(results[0].Err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", results[0].Err)
	}
	if len(extractor.extracted) != 0 {
		t.Fatalf("unsupported file must not reach the extractor, got %v", extractor.extracted)
	}
	if len(repo.created) != 0 {
		t.Fatalf("nothing may be stored for an unsupported file")
	}
}

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/uk-legal-assistant/internal/bootstrap"
	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/usecase"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/legislation"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/vector/hnsw"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const actXML = `<?xml version="1.0" encoding="UTF-8"?>
<Legislation xmlns="http://www.legislation.gov.uk/namespaces/legislation"
  xmlns:ukm="http://www.legislation.gov.uk/namespaces/metadata"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <ukm:Metadata>
    <dc:title>Employment Rights Act 1996</dc:title>
    <ukm:PrimaryMetadata><ukm:Year Value="1996"/></ukm:PrimaryMetadata>
  </ukm:Metadata>
  <Primary>
    <Body>
      <Part>
        <Number>PART IX</Number>
        <Title>Termination of employment</Title>
        <P1group>
          <Title>Rights of employer and employee to minimum notice.</Title>
          <P1>
            <Pnumber>86</Pnumber>
            <P1para>
              <Text>The notice required to be given by an employer to terminate the contract of employment of a person who has been continuously employed for one month or more is not less than one week's notice.</Text>
            </P1para>
          </P1>
        </P1group>
      </Part>
    </Body>
  </Primary>
</Legislation>`

type embedderFake struct{}

func (embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type completerFake struct {
	reply string
}

func (c completerFake) Complete(context.Context, string, []domain.Turn, string) (string, error) {
	return c.reply, nil
}

func offlineCore(t *testing.T) (*hnsw.Store, func()) {
	t.Helper()
	index, err := hnsw.Open("")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	previous := coreFactory
	coreFactory = func(cfg config.Config, _ ...bootstrap.Option) (*bootstrap.Core, error) {
		lex := lexicon.Default()
		return &bootstrap.Core{
			Config:    cfg,
			Lexicon:   lex,
			Embedder:  embedderFake{},
			Completer: completerFake{reply: "Employees are entitled to at least one week's notice."},
			VectorDB:  index,
			Fetcher:   legislation.NewFetcher(legislation.FetcherOptions{}),
			Chunker:   chunking.NewLegislationChunker(chunking.Config{}, lex),
			Retrieval: usecase.NewRetrievalUseCase(embedderFake{}, index, lex, usecase.RetrievalConfig{}),
		}, nil
	}
	return index, func() { coreFactory = previous }
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIngestCommandIndexesLocalFile(t *testing.T) {
	index, restore := offlineCore(t)
	defer restore()

	path := filepath.Join(t.TempDir(), "era1996.xml")
	if err := os.WriteFile(path, []byte(actXML), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	out, err := execute(t, "ingest", "file://"+path)
	if err != nil {
		t.Fatalf("ingest returned error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "from 1 sources") {
		t.Fatalf("unexpected output %q", out)
	}
	if index.Len() == 0 {
		t.Fatalf("expected chunks in the index")
	}
}

func TestIngestCommandFailsWhenSourcesFail(t *testing.T) {
	_, restore := offlineCore(t)
	defer restore()

	out, err := execute(t, "ingest", "file://"+filepath.Join(t.TempDir(), "missing.xml"))
	if err == nil {
		t.Fatalf("expected error for missing source, output %q", out)
	}
	if !strings.Contains(out, "Failed sources") {
		t.Fatalf("expected failure report, got %q", out)
	}
}

func TestClassifyCommandReportsVerdict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brochure.txt")
	text := strings.Repeat("Our summer collection of garden furniture is now in stock. ", 5)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	out, err := execute(t, "classify", path)
	if err != nil {
		t.Fatalf("classify returned error: %v", err)
	}
	if !strings.Contains(out, "brochure.txt: REJECTED") || !strings.Contains(out, "suggestion:") {
		t.Fatalf("unexpected classify output %q", out)
	}
}

func TestClassifyCommandRequiresFile(t *testing.T) {
	if _, err := execute(t, "classify"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestAskCommandPrintsAnswer(t *testing.T) {
	_, restore := offlineCore(t)
	defer restore()

	out, err := execute(t, "ask", "how", "much", "notice", "must", "an", "employer", "give")
	if err != nil {
		t.Fatalf("ask returned error: %v", err)
	}
	if !strings.Contains(out, "one week's notice") {
		t.Fatalf("unexpected ask output %q", out)
	}
}

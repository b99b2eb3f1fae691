package usecase

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

type embedderFake struct {
	mu      sync.Mutex
	err     error
	queries []string
	batches [][]string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, text)
	return []float32{float32(len(text)), 1}, nil
}

type searchCall struct {
	limit  int
	filter domain.SearchFilter
}

type vectorStoreFake struct {
	mu       sync.Mutex
	search   func(ctx context.Context, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error)
	calls    []searchCall
	indexed  []domain.Chunk
	vectors  [][]float32
	pruned   []pruneCall
	events   []string
	indexErr error
}

type pruneCall struct {
	sourceURL string
	keep      int
}

func (f *vectorStoreFake) IndexChunks(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "index")
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, chunks...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *vectorStoreFake) PruneSource(_ context.Context, sourceURL string, keepChunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "prune")
	f.pruned = append(f.pruned, pruneCall{sourceURL: sourceURL, keep: keepChunks})
	return nil
}

func (f *vectorStoreFake) Search(ctx context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{limit: limit, filter: filter})
	search := f.search
	f.mu.Unlock()
	if search == nil {
		return nil, nil
	}
	return search(ctx, filter)
}

func (f *vectorStoreFake) filters() []domain.SearchFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SearchFilter, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.filter)
	}
	return out
}

type completeCall struct {
	system  string
	history []domain.Turn
	human   string
}

type completerFake struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []completeCall
}

func (f *completerFake) Complete(_ context.Context, systemPrompt string, history []domain.Turn, humanPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completeCall{system: systemPrompt, history: history, human: humanPrompt})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type memoryFake struct {
	sync.Mutex
	turns []domain.Turn
}

func (m *memoryFake) Turns() []domain.Turn { return append([]domain.Turn(nil), m.turns...) }

func (m *memoryFake) Append(turns ...domain.Turn) { m.turns = append(m.turns, turns...) }

type sessionStoreFake struct {
	sessions map[string]*memoryFake
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string]*memoryFake{}}
}

func (s *sessionStoreFake) Open(sessionID string, prior []domain.Turn) ports.SessionMemory {
	m, ok := s.sessions[sessionID]
	if !ok {
		m = &memoryFake{turns: append([]domain.Turn(nil), prior...)}
		s.sessions[sessionID] = m
	}
	return m
}

func (s *sessionStoreFake) Evict(sessionID string) { delete(s.sessions, sessionID) }

type documentRepoFake struct {
	docs       []domain.UploadedDocument
	created    []*domain.UploadedDocument
	listErr    error
	createErr  error
	purgedTo   time.Time
	purgeCount int64
	deactivate []string
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.UploadedDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, doc)
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.UploadedDocument, error) {
	for _, d := range f.docs {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (f *documentRepoFake) ListActiveBySession(context.Context, string, string) ([]domain.UploadedDocument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.docs, nil
}

func (f *documentRepoFake) Deactivate(_ context.Context, id, _ string) error {
	f.deactivate = append(f.deactivate, id)
	return nil
}

func (f *documentRepoFake) PurgeExpired(_ context.Context, createdBefore time.Time) (int64, error) {
	f.purgedTo = createdBefore
	return f.purgeCount, nil
}

type chatHistoryFake struct {
	stored   []domain.ChatMessage
	appended []domain.ChatMessage
	listed   int
}

func (f *chatHistoryFake) AppendMessage(_ context.Context, message domain.ChatMessage) error {
	f.appended = append(f.appended, message)
	return nil
}

func (f *chatHistoryFake) ListMessages(_ context.Context, _, _ string, limit int) ([]domain.ChatMessage, error) {
	f.listed = limit
	return f.stored, nil
}

type fetcherFake struct {
	docs map[string][]byte
	err  map[string]error
}

func (f *fetcherFake) Fetch(_ context.Context, url string) ([]byte, error) {
	if err := f.err[url]; err != nil {
		return nil, err
	}
	return f.docs[url], nil
}

type chunkerFake struct {
	count int
}

func (f *chunkerFake) Chunk(r io.Reader, source domain.LegislationSource) ([]domain.Chunk, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, f.count)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:          source.URL + "-chunk-" + strconv.Itoa(i),
			Text:        "provision text",
			SourceURL:   source.URL,
			ChunkIndex:  i,
			TotalChunks: f.count,
		}
	}
	return chunks, nil
}

type objectStorageFake struct {
	saved map[string]string
}

func (f *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(b)
	return nil
}

func (f *objectStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrDocumentNotFound
}

type chunkRepoFake struct {
	replaced map[string]int
}

func (f *chunkRepoFake) ReplaceSource(_ context.Context, sourceURL string, chunks []domain.Chunk) error {
	if f.replaced == nil {
		f.replaced = map[string]int{}
	}
	f.replaced[sourceURL] = len(chunks)
	return nil
}

func candidate(id, title, legislationType string, score float64) domain.RetrievalCandidate {
	return domain.RetrievalCandidate{
		Chunk: domain.Chunk{
			ID:              id,
			Text:            "text of " + id,
			ActTitle:        title,
			LegislationType: legislationType,
			SectionContext:  domain.SectionGeneral,
		},
		Score: score,
	}
}

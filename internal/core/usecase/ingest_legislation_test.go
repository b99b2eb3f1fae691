package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/vector/hnsw"
)

const (
	hswaURL = "https://www.legislation.gov.uk/ukpga/1974/37/data.xml"
	eraURL  = "https://www.legislation.gov.uk/ukpga/1996/18/data.xml"
)

func TestIngestRecordsPerSourceErrorsAndContinues(t *testing.T) {
	fetcher := &fetcherFake{
		docs: map[string][]byte{hswaURL: []byte("<Legislation/>")},
		err:  map[string]error{eraURL: domain.WrapError(domain.ErrTemporary, "fetch", errors.New("503"))},
	}
	embedder := &embedderFake{}
	store := &vectorStoreFake{}
	storage := &objectStorageFake{}
	chunks := &chunkRepoFake{}
	uc := NewLegislationIngestUseCase(fetcher, &chunkerFake{count: 5}, embedder, store, storage, chunks, 2)

	report, err := uc.Ingest(context.Background(), []domain.LegislationSource{{URL: eraURL}, {URL: hswaURL}})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.ChunksWritten != 5 {
		t.Fatalf("expected 5 chunks written, got %d", report.ChunksWritten)
	}
	if len(report.Errors) != 1 || report.Errors[0].SourceURL != eraURL {
		t.Fatalf("expected one error for %s, got %+v", eraURL, report.Errors)
	}
	if len(embedder.batches) != 3 {
		t.Fatalf("expected 3 embedding batches of at most 2, got %d", len(embedder.batches))
	}
	if strings.Join(store.events, ",") != "index,prune" {
		t.Fatalf("expected upsert before pruning the old tail, got %v", store.events)
	}
	if len(store.pruned) != 1 || store.pruned[0] != (pruneCall{sourceURL: hswaURL, keep: 5}) {
		t.Fatalf("expected prune beyond the new chunk count, got %+v", store.pruned)
	}
	if len(store.vectors) != 5 {
		t.Fatalf("expected a vector per chunk, got %d", len(store.vectors))
	}
	if chunks.replaced[hswaURL] != 5 {
		t.Fatalf("expected chunk records replaced, got %v", chunks.replaced)
	}
	if got := storage.saved["legislation/www.legislation.gov.uk_ukpga_1974_37_data.xml"]; got != "<Legislation/>" {
		t.Fatalf("expected raw snapshot to be stored, got %v", storage.saved)
	}
}

func TestIngestSourceIndexFailureIsReported(t *testing.T) {
	fetcher := &fetcherFake{docs: map[string][]byte{hswaURL: []byte("<Legislation/>")}}
	store := &vectorStoreFake{indexErr: errors.New("qdrant unavailable")}
	uc := NewLegislationIngestUseCase(fetcher, &chunkerFake{count: 1}, &embedderFake{}, store, nil, nil, 0)

	report, err := uc.Ingest(context.Background(), []domain.LegislationSource{{URL: hswaURL}})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.ChunksWritten != 0 || len(report.Errors) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !strings.Contains(report.Errors[0].Message, "qdrant unavailable") {
		t.Fatalf("error message should keep the cause: %q", report.Errors[0].Message)
	}
	if len(store.pruned) != 0 {
		t.Fatalf("a failed upsert must not prune the previous version, got %+v", store.pruned)
	}
}

type unreliableIndex struct {
	*hnsw.Store
	failIndex bool
}

func (u *unreliableIndex) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if u.failIndex {
		return errors.New("index unavailable")
	}
	return u.Store.IndexChunks(ctx, chunks, vectors)
}

func TestReingestKeepsPreviousVersionUntilReplaced(t *testing.T) {
	store, err := hnsw.Open("")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	index := &unreliableIndex{Store: store}
	chunker := &chunkerFake{count: 3}
	fetcher := &fetcherFake{docs: map[string][]byte{hswaURL: []byte("<Legislation/>")}}
	uc := NewLegislationIngestUseCase(fetcher, chunker, &embedderFake{}, index, nil, nil, 0)

	if _, err := uc.IngestSource(context.Background(), domain.LegislationSource{URL: hswaURL}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 chunks after first ingest, got %d", store.Len())
	}

	index.failIndex = true
	if _, err := uc.IngestSource(context.Background(), domain.LegislationSource{URL: hswaURL}); err == nil {
		t.Fatalf("expected re-ingest to fail")
	}
	if store.Len() != 3 {
		t.Fatalf("failed re-ingest must keep the previous version, got %d chunks", store.Len())
	}

	index.failIndex = false
	chunker.count = 2
	if _, err := uc.IngestSource(context.Background(), domain.LegislationSource{URL: hswaURL}); err != nil {
		t.Fatalf("shorter re-ingest: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected the old tail pruned, got %d chunks", store.Len())
	}
	got, err := store.Search(context.Background(), []float32{1, 1}, 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, c := range got {
		if c.Chunk.ChunkIndex >= 2 {
			t.Fatalf("superseded chunk still searchable: %+v", c.Chunk)
		}
	}
}

func TestIngestRequiresSources(t *testing.T) {
	uc := NewLegislationIngestUseCase(&fetcherFake{}, &chunkerFake{}, &embedderFake{}, &vectorStoreFake{}, nil, nil, 0)
	if _, err := uc.Ingest(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := uc.IngestSource(context.Background(), domain.LegislationSource{URL: " "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type ingestQueueFake struct {
	published []domain.LegislationSource
	err       error
}

func (f *ingestQueueFake) PublishLegislationSource(_ context.Context, source domain.LegislationSource) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, source)
	return nil
}

func (f *ingestQueueFake) SubscribeLegislationSources(context.Context, func(context.Context, domain.LegislationSource) error) error {
	return nil
}

func TestScheduleQueuesEverySource(t *testing.T) {
	queue := &ingestQueueFake{}
	uc := NewIngestScheduleUseCase(queue)

	n, err := uc.Schedule(context.Background(), []domain.LegislationSource{{URL: hswaURL}, {URL: eraURL}})
	if err != nil || n != 2 {
		t.Fatalf("unexpected schedule result n=%d err=%v", n, err)
	}
	if queue.published[1].URL != eraURL {
		t.Fatalf("unexpected publish order: %+v", queue.published)
	}

	queue.err = errors.New("nats down")
	if n, err := uc.Schedule(context.Background(), []domain.LegislationSource{{URL: hswaURL}}); err == nil || n != 0 {
		t.Fatalf("expected publish failure, got n=%d err=%v", n, err)
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := snapshotKey("file:///tmp/acts/hswa.xml"); got != "legislation/tmp_acts_hswa.xml" {
		t.Fatalf("unexpected key %q", got)
	}
}

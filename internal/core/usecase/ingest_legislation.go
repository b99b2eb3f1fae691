package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

const defaultEmbedBatchSize = 16

// LegislationIngestUseCase turns legislation sources into indexed chunks.
// Storage and chunk repository are optional; the vector index is not.
type LegislationIngestUseCase struct {
	fetcher   ports.LegislationFetcher
	chunker   ports.LegislationChunker
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	storage   ports.ObjectStorage
	chunks    ports.ChunkRepository
	batchSize int
}

func NewLegislationIngestUseCase(
	fetcher ports.LegislationFetcher,
	chunker ports.LegislationChunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	storage ports.ObjectStorage,
	chunks ports.ChunkRepository,
	batchSize int,
) *LegislationIngestUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &LegislationIngestUseCase{
		fetcher:   fetcher,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		storage:   storage,
		chunks:    chunks,
		batchSize: batchSize,
	}
}

// Ingest processes every source and records per-source failures in the
// report. Only cancellation of ctx ends the run early.
func (uc *LegislationIngestUseCase) Ingest(ctx context.Context, sources []domain.LegislationSource) (domain.IngestReport, error) {
	report := domain.IngestReport{Errors: []domain.IngestError{}}
	if len(sources) == 0 {
		return report, domain.WrapError(domain.ErrInvalidInput, "ingest legislation", errors.New("no sources given"))
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		written, err := uc.IngestSource(ctx, source)
		if err != nil {
			report.Errors = append(report.Errors, domain.IngestError{SourceURL: source.URL, Message: err.Error()})
			continue
		}
		report.ChunksWritten += written
	}
	return report, nil
}

func (uc *LegislationIngestUseCase) IngestSource(ctx context.Context, source domain.LegislationSource) (int, error) {
	start := time.Now()
	source.URL = strings.TrimSpace(source.URL)
	if source.URL == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ingest source", errors.New("source url is required"))
	}

	written, err := uc.ingest(ctx, source)
	if err != nil {
		slog.Error("legislation_ingest_failed",
			"source_url", source.URL,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return 0, err
	}
	slog.Info("legislation_ingested",
		"source_url", source.URL,
		"chunks", written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}

func (uc *LegislationIngestUseCase) ingest(ctx context.Context, source domain.LegislationSource) (int, error) {
	raw, err := uc.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", source.URL, err)
	}

	if uc.storage != nil {
		if err := uc.storage.Save(ctx, snapshotKey(source.URL), bytes.NewReader(raw)); err != nil {
			return 0, fmt.Errorf("save snapshot: %w", err)
		}
	}

	chunks, err := uc.chunker.Chunk(bytes.NewReader(raw), source)
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", source.URL, err)
	}
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "chunk "+source.URL, errors.New("no chunks produced"))
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	// Chunk ids are positional, so the upsert overwrites the previous version
	// in place and only a longer old tail is left to prune. A failed upsert
	// leaves the last good version searchable.
	if err := uc.vectorDB.IndexChunks(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index chunks in vector db: %w", err)
	}
	if err := uc.vectorDB.PruneSource(ctx, source.URL, len(chunks)); err != nil {
		return 0, fmt.Errorf("prune superseded points: %w", err)
	}
	if uc.chunks != nil {
		if err := uc.chunks.ReplaceSource(ctx, source.URL, chunks); err != nil {
			return 0, fmt.Errorf("store chunk records: %w", err)
		}
	}
	return len(chunks), nil
}

func (uc *LegislationIngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// snapshotKey maps a source URL to a stable object key.
func snapshotKey(sourceURL string) string {
	trimmed := sourceURL
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	trimmed = strings.Trim(trimmed, "/")
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, trimmed)
	if key == "" {
		key = "source"
	}
	if !strings.HasSuffix(key, ".xml") {
		key += ".xml"
	}
	return "legislation/" + key
}

// IngestScheduleUseCase queues sources for the worker.
type IngestScheduleUseCase struct {
	queue ports.IngestQueue
}

func NewIngestScheduleUseCase(queue ports.IngestQueue) *IngestScheduleUseCase {
	return &IngestScheduleUseCase{queue: queue}
}

func (uc *IngestScheduleUseCase) Schedule(ctx context.Context, sources []domain.LegislationSource) (int, error) {
	if len(sources) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "schedule ingest", errors.New("no sources given"))
	}
	queued := 0
	for _, source := range sources {
		if strings.TrimSpace(source.URL) == "" {
			return queued, domain.WrapError(domain.ErrInvalidInput, "schedule ingest", errors.New("source url is required"))
		}
		if err := uc.queue.PublishLegislationSource(ctx, source); err != nil {
			return queued, fmt.Errorf("publish ingest job: %w", err)
		}
		queued++
	}
	return queued, nil
}

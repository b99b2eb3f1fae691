package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
	"github.com/kirillkom/uk-legal-assistant/internal/core/usecase"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/legislation"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/llm/embedcache"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/relevance"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/session/memory"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/vector/hnsw"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const (
	VectorBackendQdrant = "qdrant"
	VectorBackendHNSW   = "hnsw"
)

// Core holds the components that need neither Postgres nor NATS: the model
// clients, the vector index, the lexicon-driven classifiers and retrieval.
// The CLI and the MCP server run on a Core alone.
type Core struct {
	Config  config.Config
	Lexicon *lexicon.Lexicon

	Embedder   ports.Embedder
	Completer  ports.ChatCompleter
	VectorDB   ports.VectorStore
	Extractor  ports.TextExtractor
	Classifier ports.RelevanceClassifier
	Analyzer   ports.DocumentAnalyzer
	Fetcher    ports.LegislationFetcher
	Chunker    ports.LegislationChunker
	Storage    ports.ObjectStorage
	Sessions   ports.SessionStore
	Retrieval  *usecase.RetrievalUseCase

	hnswIndex *hnsw.Store
	executor  *resilience.Executor
}

type options struct {
	observer resilience.Observer
}

type Option func(*options)

// WithResilienceObserver reports breaker transitions and retries of every
// outbound dependency, usually to the process metrics.
func WithResilienceObserver(observer resilience.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func NewCore(cfg config.Config, opts ...Option) (*Core, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lex := lexicon.Default()
	if strings.TrimSpace(cfg.LexiconPath) != "" {
		loaded, err := lexicon.Load(cfg.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		lex = loaded
	}

	executor := newExecutor(cfg, o.observer)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := embedcache.New(ollama.NewEmbedder(ollamaClient), cfg.OllamaEmbedModel, cfg.EmbedCacheSize)

	core := &Core{
		Config:     cfg,
		Lexicon:    lex,
		Embedder:   embedder,
		Completer:  ollama.NewChatCompleter(ollamaClient),
		Extractor:  extractor.New(),
		Classifier: relevance.NewClassifier(lex),
		Analyzer:   relevance.NewAnalyzer(lex),
		Fetcher: legislation.NewFetcher(legislation.FetcherOptions{
			Timeout:        cfg.FetchTimeout,
			MaxBytes:       cfg.FetchMaxBytes,
			RequestsPerSec: cfg.FetchRequestsPerSec,
			Executor:       executor,
		}),
		Chunker: chunking.NewLegislationChunker(chunking.Config{
			MaxChars:         cfg.ChunkMaxChars,
			MinFragmentChars: cfg.ChunkMinFragmentChars,
		}, lex),
		Storage:  storage,
		Sessions: memory.NewStore(cfg.SessionMax, cfg.SessionTTL),
		executor: executor,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.VectorBackend)) {
	case "", VectorBackendQdrant:
		core.VectorDB = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	case VectorBackendHNSW:
		index, err := hnsw.Open(cfg.HNSWIndexPath)
		if err != nil {
			return nil, fmt.Errorf("open hnsw index: %w", err)
		}
		core.hnswIndex = index
		core.VectorDB = index
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}

	core.Retrieval = usecase.NewRetrievalUseCase(embedder, core.VectorDB, lex, retrievalConfig(cfg))
	return core, nil
}

// Answerer builds the answering use case. documents may be nil when no
// upload repository is available.
func (c *Core) Answerer(documents ports.UploadedDocumentRepository) *usecase.AnswerUseCase {
	return usecase.NewAnswerUseCase(c.Retrieval, c.Completer, c.Sessions, documents, c.Lexicon, contextConfig(c.Config))
}

// Ingestor builds the legislation ingest use case. chunks may be nil.
func (c *Core) Ingestor(chunks ports.ChunkRepository) *usecase.LegislationIngestUseCase {
	return usecase.NewLegislationIngestUseCase(c.Fetcher, c.Chunker, c.Embedder, c.VectorDB, c.Storage, chunks, c.Config.EmbedBatchSize)
}

// Close persists the in-process index when one is in use.
func (c *Core) Close() {
	if c.hnswIndex == nil {
		return
	}
	if err := c.hnswIndex.Flush(); err != nil {
		slog.Error("hnsw_flush_failed", "path", c.Config.HNSWIndexPath, "error", err.Error())
	}
}

type App struct {
	*Core

	DB        *sql.DB
	Queue     *nats.Queue
	Chat      *usecase.ChatUseCase
	Documents *usecase.DocumentUseCase
	Ingest    *usecase.LegislationIngestUseCase
	Scheduler *usecase.IngestScheduleUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	core, err := NewCore(cfg, opts...)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		core.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: core.executor,
	})
	if err != nil {
		_ = db.Close()
		core.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	documentsRepo := postgres.NewUploadedDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	chatRepo := postgres.NewChatRepository(db)

	answerUC := core.Answerer(documentsRepo)
	documentUC := usecase.NewDocumentUseCase(
		documentsRepo,
		core.Extractor,
		core.Classifier,
		core.Analyzer,
		core.Completer,
		core.Lexicon,
		usecase.UploadConfig{
			MaxFiles:     cfg.UploadMaxFiles,
			MaxFileBytes: cfg.UploadMaxFileBytes,
			TTL:          cfg.UploadTTL,
			Context:      contextConfig(cfg),
		},
	)

	return &App{
		Core:      core,
		DB:        db,
		Queue:     queue,
		Chat:      usecase.NewChatUseCase(answerUC, chatRepo, cfg.ChatHistoryLimit),
		Documents: documentUC,
		Ingest:    core.Ingestor(chunkRepo),
		Scheduler: usecase.NewIngestScheduleUseCase(queue),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
			core.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}

// newExecutor builds the executor shared by all adapters. Background
// ingestion calls (fetch, index writes, job publishing) retry with a longer
// backoff; searches and model calls fail fast so a question is answered or
// rejected within the request timeout.
func newExecutor(cfg config.Config, observer resilience.Observer) *resilience.Executor {
	base := resilienceConfig(cfg)

	ingest := base
	if cfg.IngestRetryMaxAttempts > 0 {
		ingest.RetryMaxAttempts = cfg.IngestRetryMaxAttempts
	}
	if cfg.IngestRetryMaxBackoff > 0 {
		ingest.RetryMaxBackoff = cfg.IngestRetryMaxBackoff
	}

	// legislation.gov.uk throttles bursts; three failed fetches are enough
	// to back off for a while.
	fetch := ingest
	fetch.BreakerMinRequests = 3
	if cfg.FetchBreakerOpenTimeout > 0 {
		fetch.BreakerOpenTimeout = cfg.FetchBreakerOpenTimeout
	}

	model := base
	if cfg.OllamaBreakerOpenTimeout > 0 {
		model.BreakerOpenTimeout = cfg.OllamaBreakerOpenTimeout
	}

	opts := []resilience.Option{
		resilience.WithPolicy(resilience.DependencyLegislation, fetch),
		resilience.WithPolicy(resilience.DependencyOllama, model),
		resilience.WithPolicy(resilience.DependencyNATS, ingest),
		resilience.WithPolicy("qdrant.upsert", ingest),
		resilience.WithPolicy("qdrant.delete", ingest),
	}
	if observer != nil {
		opts = append(opts, resilience.WithObserver(observer))
	}
	return resilience.NewExecutor(base, opts...)
}

func retrievalConfig(cfg config.Config) usecase.RetrievalConfig {
	return usecase.RetrievalConfig{
		TopK:             cfg.RetrievalTopK,
		FilteredTopK:     cfg.RetrievalFilteredTopK,
		FusedLimit:       cfg.RetrievalFusedLimit,
		HintCount:        cfg.RetrievalHintCount,
		StrictThreshold:  cfg.RetrievalStrictThreshold,
		RelaxedThreshold: cfg.RetrievalRelaxedThreshold,
		LongQueryTokens:  cfg.RetrievalLongQueryTokens,
		VariantTimeout:   cfg.RetrievalVariantTimeout,
		RecencyMinYear:   cfg.RetrievalRecencyMinYear,
	}
}

func contextConfig(cfg config.Config) usecase.ContextConfig {
	return usecase.ContextConfig{
		TokenBudget:        cfg.ContextTokenBudget,
		QueryReserveTokens: cfg.ContextQueryReserveTokens,
	}
}

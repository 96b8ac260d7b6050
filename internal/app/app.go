// Package app assembles the ingestion pipeline and query orchestrator from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/rag-server/internal/answer"
	"github.com/bull/rag-server/internal/api"
	"github.com/bull/rag-server/internal/archive"
	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/config"
	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/embedding"
	"github.com/bull/rag-server/internal/events"
	"github.com/bull/rag-server/internal/generation"
	"github.com/bull/rag-server/internal/ingestion"
	"github.com/bull/rag-server/internal/jobs"
	mcpserver "github.com/bull/rag-server/internal/mcp"
	"github.com/bull/rag-server/internal/metrics"
	"github.com/bull/rag-server/internal/postgres"
	"github.com/bull/rag-server/internal/rerank"
	"github.com/bull/rag-server/internal/resilience"
	"github.com/bull/rag-server/internal/retrieval"
	"github.com/bull/rag-server/internal/schedule"
	"github.com/bull/rag-server/internal/vectorstore"
)

// App owns every long-lived component.
type App struct {
	Handler      http.Handler
	MCP          *mcpserver.Server
	Ingestion    *ingestion.Service
	Orchestrator *answer.Orchestrator
	Metrics      *metrics.Metrics

	scheduler *schedule.Scheduler
	closers   []func() error
	logger    *slog.Logger
}

// vectorBackend is what the app needs from a concrete vector store.
type vectorBackend interface {
	resilience.DocumentStore
	domain.HealthChecker
}

// Build connects to every configured backend. On error, anything already
// opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	m := metrics.New()
	a.Metrics = m
	health := map[string]domain.HealthChecker{}

	var pg *postgres.Client
	if cfg.VectorStore.Backend == "pgvector" || cfg.JobStore.Backend == "postgres" {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.onClose(pg.Close)
		health["postgres"] = pg
	}

	rawEmbedder, openaiClient, err := buildEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	embedder := domain.EmbeddingClient(resilience.GuardEmbedder(rawEmbedder, policy(cfg.Embedding.Call, m), logger))
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCached(embedder, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL, m)
	}

	rawGenerator, err := buildGenerator(ctx, cfg.Generation, openaiClient)
	if err != nil {
		return nil, err
	}
	generator := resilience.GuardGenerator(rawGenerator, policy(cfg.Generation.Call, m), logger)

	rawStore, err := a.buildVectorStore(ctx, cfg, pg)
	if err != nil {
		return nil, err
	}
	health["vector_store"] = rawStore
	store := resilience.GuardVectorStore(rawStore, policy(cfg.VectorStore.Call, m), logger)

	jobStore, err := a.buildJobStore(ctx, cfg, pg)
	if err != nil {
		return nil, err
	}
	if hc, ok := jobStore.(domain.HealthChecker); ok {
		health["job_store"] = hc
	}

	var trackerOpts []jobs.Option
	if cfg.Kafka.Enabled {
		notifier := events.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.JobEventsTopic, logger)
		a.onClose(notifier.Close)
		trackerOpts = append(trackerOpts, jobs.WithNotifier(notifier))
	}
	tracker := jobs.NewTracker(jobStore, logger, trackerOpts...)

	ch, err := chunker.New(chunker.Config{
		MaxChunkSize:      cfg.Chunking.MaxChunkSize,
		OverlapSize:       cfg.Chunking.OverlapSize,
		BoundaryTolerance: cfg.Chunking.BoundaryTolerance,
	})
	if err != nil {
		return nil, err
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithMetrics(m),
		ingestion.WithDocumentRemover(store),
	}
	archiver, err := buildArchiver(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		ingestOpts = append(ingestOpts, ingestion.WithArchiver(archiver))
	}
	a.Ingestion = ingestion.NewService(tracker, ch, embedder, store, ingestion.Config{
		Concurrency:   cfg.Ingest.Concurrency,
		MaxDocuments:  cfg.Ingest.MaxDocuments,
		MaxTotalBytes: cfg.Ingest.MaxTotalBytes,
	}, logger, ingestOpts...)

	var retrieverOpts []retrieval.Option
	if cfg.Retrieval.MinSimilarity > 0 {
		retrieverOpts = append(retrieverOpts, retrieval.WithMinSimilarity(cfg.Retrieval.MinSimilarity))
	}
	retriever := retrieval.NewRetriever(embedder, store, logger, retrieverOpts...)

	var scorer domain.RerankerClient
	if cfg.Reranker.Enabled {
		httpScorer := rerank.NewHTTPScorer(cfg.Reranker.URL, nil)
		health["reranker"] = httpScorer
		scorer = resilience.GuardReranker(httpScorer, policy(cfg.Reranker.Call, m), logger)
	}
	reranker := rerank.NewReranker(scorer, cfg.Retrieval.RerankConcurrency, logger)

	a.Orchestrator = answer.NewOrchestrator(retriever, reranker, generator, answer.Config{
		TopK:             cfg.Retrieval.TopK,
		MaxTopK:          cfg.Retrieval.MaxTopK,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		MaxQueryLength:   cfg.Retrieval.MaxQueryLength,
	}, m, logger)

	a.MCP = mcpserver.NewServer(&mcpserver.Config{
		Answerer: a.Orchestrator,
		Ingester: a.Ingestion,
	})

	var metricsReg *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsReg = m
	}
	a.Handler = api.NewServer(api.Config{
		Answerer:       a.Orchestrator,
		Ingester:       a.Ingestion,
		Health:         health,
		Metrics:        metricsReg,
		MCP:            mcpserver.NewHTTPHandler(a.MCP, true),
		MaxUploadBytes: cfg.Ingest.MaxTotalBytes,
		Logger:         logger,
	}).Handler()

	if cfg.GitHub.Schedule != "" {
		if err := a.scheduleGitHubSync(cfg); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Start runs background schedules until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}
}

// Close drains in-flight ingestion, then releases connections in reverse
// order of creation.
func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	var errs []error
	if a.Ingestion != nil {
		if err := a.Ingestion.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func policy(c config.CallPolicy, m *metrics.Metrics) resilience.Policy {
	p := resilience.FromConfig(c)
	p.Observer = m
	return p
}

// buildEmbedder returns the configured embedder and, for OpenAI, the SDK
// client so the generator can share its connection pool.
func buildEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (domain.EmbeddingClient, *openai.Client, error) {
	switch cfg.Provider {
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Client(), nil
	case "gemini":
		e, err := embedding.NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	case "service":
		return embedding.NewServiceEmbedder(cfg.BaseURL, cfg.Dimension, nil), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

func buildGenerator(ctx context.Context, cfg config.GenerationConfig, shared *openai.Client) (domain.GenerationClient, error) {
	switch cfg.Provider {
	case "openai":
		client := shared
		if client == nil {
			c := openai.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0))
			client = &c
		}
		return generation.NewOpenAIGenerator(client, cfg.Model, cfg.Temperature), nil
	case "gemini":
		return generation.NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	}
	return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
}

func (a *App) buildVectorStore(ctx context.Context, cfg *config.Config, pg *postgres.Client) (vectorBackend, error) {
	switch cfg.VectorStore.Backend {
	case "qdrant":
		s, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Host,
			Port:       cfg.VectorStore.Port,
			Collection: cfg.VectorStore.Collection,
			Dimension:  cfg.Embedding.Dimension,
			Distance:   cfg.VectorStore.Distance,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		if err := s.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "pgvector":
		s, err := vectorstore.NewPgVectorStore(pg.DB, cfg.VectorStore.Collection, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx, pg.InTx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
}

func (a *App) buildJobStore(ctx context.Context, cfg *config.Config, pg *postgres.Client) (jobs.Store, error) {
	switch cfg.JobStore.Backend {
	case "memory":
		return jobs.NewMemoryStore(), nil
	case "redis":
		s, err := jobs.NewRedisStore(ctx, jobs.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	case "postgres":
		return jobs.NewPostgresStore(ctx, pg.DB)
	}
	return nil, fmt.Errorf("unknown job store backend %q", cfg.JobStore.Backend)
}

func buildArchiver(ctx context.Context, cfg config.ArchiveConfig) (ingestion.Archiver, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		return archive.NewFSArchive(cfg.Dir)
	case "s3":
		return archive.NewS3Archive(ctx, archive.S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
}

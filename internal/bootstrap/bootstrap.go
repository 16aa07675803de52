package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/core/cache"
	"github.com/vmaslov/retrieval-engine/internal/core/lexical"
	"github.com/vmaslov/retrieval-engine/internal/core/ports"
	"github.com/vmaslov/retrieval-engine/internal/core/usecase"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/embedding/ollama"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/queue/nats"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/repository/postgres"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/rerank/httpapi"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/vector/chroma"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue

	Search   ports.SearchService
	Admin    ports.EngineAdmin
	IngestUC ports.ChunkIngestor
	Batches  ports.BatchReader
	IndexUC  ports.CorpusIndexer

	closeFn func()
}

// New wires the full dependency graph and fails fast: a missing
// database, queue, embedder or vector store is a deployment problem,
// not something to degrade around at startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewChunkRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSIndexedSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
	crossEncoder := httpapi.New(cfg.RerankerURL, httpapi.WithExecutor(executor))

	vectorStore := chroma.New(cfg.ChromaURL, cfg.ChromaCollection, chroma.WithExecutor(executor))
	if err := vectorStore.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure vector collection: %w", err)
	}

	// The embedding model fixes the vector dimension for the lifetime
	// of the deployment; probe it once instead of trusting config.
	probe, err := embedder.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(probe) == 0 {
		return nil, errors.New("probe embedding dimension: empty vector")
	}

	embeddingCache, err := cache.NewEmbeddingCache(cfg.EmbeddingCacheSize, len(probe))
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	resultCache, err := cache.NewResultCache(cfg.ResultCacheSize, time.Duration(cfg.ResultCacheTTLSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("init result cache: %w", err)
	}

	searchUC := usecase.NewSearchUseCase(embedder, vectorStore, crossEncoder, resultCache, embeddingCache, usecase.SearchParams{
		DefaultTopK:     cfg.SearchTopK,
		CandidateFactor: cfg.SearchCandidateFactor,
		Strategy:        cfg.FusionStrategy,
		Fusion: usecase.FusionWeights{
			Semantic: cfg.FusionSemanticWeight,
			Lexical:  cfg.FusionLexicalWeight,
		},
		MinScore: cfg.FusionMinScore,
		RRFK:     cfg.FusionRRFK,
		RerankWeights: usecase.RerankWeights{
			Hybrid: cfg.RerankHybridWeight,
			Model:  cfg.RerankModelWeight,
		},
		Lexical:         lexical.Params{K1: cfg.BM25K1, B: cfg.BM25B},
		Workers:         cfg.SearchWorkers,
		RetrieveTimeout: time.Duration(cfg.RetrieveTimeoutSeconds) * time.Second,
	})
	ingestUC := usecase.NewIngestChunksUseCase(repo, queue)
	indexUC := usecase.NewIndexCorpusUseCase(repo, embedder, vectorStore, queue, cfg.IndexEmbedBatch)

	return &App{
		Config: cfg,
		Queue:  queue,

		Search:   searchUC,
		Admin:    searchUC,
		IngestUC: ingestUC,
		Batches:  ingestUC,
		IndexUC:  indexUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

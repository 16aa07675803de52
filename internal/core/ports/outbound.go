package ports

import (
	"context"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

// ChunkRepository persists ingested chunk batches until they are indexed.
type ChunkRepository interface {
	SaveBatch(ctx context.Context, batch *domain.ChunkBatch, chunks []domain.Chunk) error
	GetBatch(ctx context.Context, batchID string) (*domain.ChunkBatch, error)
	ListBatchChunks(ctx context.Context, batchID string) ([]domain.Chunk, error)
	UpdateBatchStatus(ctx context.Context, batchID string, status domain.BatchStatus, errMessage string) error
}

// MessageQueue publishes/consumes corpus pipeline events.
type MessageQueue interface {
	PublishChunksIngested(ctx context.Context, batchID string) error
	SubscribeChunksIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishCorpusIndexed(ctx context.Context, batchID string) error
	SubscribeCorpusIndexed(ctx context.Context, handler func(context.Context, string) error) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the k-NN service holding the indexed corpus.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	DeleteBySource(ctx context.Context, sourceFile string) error
	Query(ctx context.Context, queryVector []float32, topN int) ([]domain.VectorMatch, error)
	GetAll(ctx context.Context) ([]domain.Chunk, error)
	Count(ctx context.Context) (int, error)
}

// CrossEncoder scores (query, text) pairs for reranking.
type CrossEncoder interface {
	ScorePair(ctx context.Context, query, text string) (float64, error)
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

package ports

import (
	"context"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

// SearchService is the inbound contract for hybrid retrieval.
type SearchService interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// ChunkIngestor accepts producer-supplied chunk batches for indexing.
type ChunkIngestor interface {
	IngestBatch(ctx context.Context, sourceFile string, replaceSource bool, chunks []domain.Chunk) (*domain.ChunkBatch, error)
}

// BatchReader is the inbound read model for batch state.
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (*domain.ChunkBatch, error)
}

// CorpusIndexer is the inbound contract for asynchronous batch indexing.
type CorpusIndexer interface {
	IndexBatch(ctx context.Context, batchID string) error
}

// EngineAdmin covers index rebuilds, cache management and stats.
// RebuildIndex reports how many chunks the fresh snapshot holds.
type EngineAdmin interface {
	RebuildIndex(ctx context.Context) (int, error)
	ClearCaches()
	Stats(ctx context.Context) (domain.EngineStats, error)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/core/ports"
)

// embedWorkers bounds concurrent embedding sub-batches per indexing job.
const embedWorkers = 4

type IndexCorpusUseCase struct {
	repo        ports.ChunkRepository
	embedder    ports.Embedder
	vectorStore ports.VectorStore
	queue       ports.MessageQueue
	batchSize   int
}

func NewIndexCorpusUseCase(
	repo ports.ChunkRepository,
	embedder ports.Embedder,
	vectorStore ports.VectorStore,
	queue ports.MessageQueue,
	embedBatchSize int,
) *IndexCorpusUseCase {
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}
	return &IndexCorpusUseCase{
		repo:        repo,
		embedder:    embedder,
		vectorStore: vectorStore,
		queue:       queue,
		batchSize:   embedBatchSize,
	}
}

// IndexBatch embeds a pending batch and upserts it into the vector
// store. Redeliveries of already indexed batches are acknowledged
// without work.
func (uc *IndexCorpusUseCase) IndexBatch(ctx context.Context, batchID string) error {
	batch, err := uc.loadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchStatusIndexed {
		slog.Info("batch_already_indexed", "batch_id", batchID)
		return nil
	}

	if err := uc.indexPipeline(ctx, batch); err != nil {
		if failErr := uc.markFailed(ctx, batchID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateBatchStatus(ctx, batchID, domain.BatchStatusIndexed, ""); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}

	if err := uc.queue.PublishCorpusIndexed(ctx, batchID); err != nil {
		return fmt.Errorf("publish indexed event: %w", err)
	}

	return nil
}

func (uc *IndexCorpusUseCase) indexPipeline(ctx context.Context, batch *domain.ChunkBatch) error {
	chunks, err := uc.loadChunks(ctx, batch.ID)
	if err != nil {
		return err
	}

	vectors, err := uc.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	if batch.ReplaceSource {
		if err := uc.vectorStore.DeleteBySource(ctx, batch.SourceFile); err != nil {
			return fmt.Errorf("delete replaced source: %w", err)
		}
	}

	if err := uc.vectorStore.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("upsert chunks in vector store: %w", err)
	}

	return nil
}

func (uc *IndexCorpusUseCase) loadBatch(ctx context.Context, batchID string) (*domain.ChunkBatch, error) {
	batch, err := uc.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("fetch batch by id: %w", err)
	}
	return batch, nil
}

func (uc *IndexCorpusUseCase) loadChunks(ctx context.Context, batchID string) ([]domain.Chunk, error) {
	chunks, err := uc.repo.ListBatchChunks(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index batch", errors.New("batch has no chunks"))
	}
	return chunks, nil
}

// embedAll fans sub-batches out to the embedder. Each goroutine writes
// its own slice region, so the assembled vectors stay aligned with the
// chunk order.
func (uc *IndexCorpusUseCase) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	for start := 0; start < len(chunks); start += uc.batchSize {
		start := start
		end := min(start+uc.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, chunk := range chunks[start:end] {
				texts = append(texts, chunk.Text)
			}
			batch, err := uc.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
			}
			if len(batch) != len(texts) {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed chunks",
					fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
				)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (uc *IndexCorpusUseCase) markFailed(ctx context.Context, batchID string, indexErr error) error {
	if indexErr == nil {
		return nil
	}
	return uc.repo.UpdateBatchStatus(ctx, batchID, domain.BatchStatusFailed, indexErr.Error())
}

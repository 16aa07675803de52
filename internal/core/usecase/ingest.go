package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/core/ports"
)

type IngestChunksUseCase struct {
	repo  ports.ChunkRepository
	queue ports.MessageQueue
}

func NewIngestChunksUseCase(
	repo ports.ChunkRepository,
	queue ports.MessageQueue,
) *IngestChunksUseCase {
	return &IngestChunksUseCase{
		repo:  repo,
		queue: queue,
	}
}

// IngestBatch accepts pre-split chunks, persists them as a pending
// batch and announces the batch for indexing. Producers may supply
// stable chunk IDs (content hashes); blank IDs get a fresh uuid.
// Chunk order in the request is canonical, the index is positional.
func (uc *IngestChunksUseCase) IngestBatch(
	ctx context.Context,
	sourceFile string,
	replaceSource bool,
	chunks []domain.Chunk,
) (*domain.ChunkBatch, error) {
	sourceFile = strings.TrimSpace(sourceFile)
	if sourceFile == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest batch", errors.New("empty source file"))
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest batch", errors.New("no chunks supplied"))
	}

	now := time.Now().UTC()
	batch := &domain.ChunkBatch{
		ID:            uuid.NewString(),
		SourceFile:    sourceFile,
		ReplaceSource: replaceSource,
		ChunkCount:    len(chunks),
		Status:        domain.BatchStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	prepared := make([]domain.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"ingest batch",
				fmt.Errorf("chunk %d has empty text", i),
			)
		}
		if strings.TrimSpace(chunk.ID) == "" {
			chunk.ID = uuid.NewString()
		}
		chunk.SourceFile = sourceFile
		chunk.ChunkIndex = i
		prepared = append(prepared, chunk)
	}

	if err := uc.repo.SaveBatch(ctx, batch, prepared); err != nil {
		return nil, fmt.Errorf("save chunk batch: %w", err)
	}

	if err := uc.queue.PublishChunksIngested(ctx, batch.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return batch, nil
}

// GetBatch reports ingestion status to callers polling a batch.
func (uc *IngestChunksUseCase) GetBatch(ctx context.Context, batchID string) (*domain.ChunkBatch, error) {
	batch, err := uc.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("fetch batch by id: %w", err)
	}
	return batch, nil
}

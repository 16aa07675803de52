package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

type indexEmbedderFake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *indexEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (f *indexEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

type indexVectorFake struct {
	upsertChunks  []domain.Chunk
	upsertVectors [][]float32
	deletedSource string
	deleteAfterUp bool
	upsertErr     error
}

func (f *indexVectorFake) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertChunks = chunks
	f.upsertVectors = vectors
	return nil
}

func (f *indexVectorFake) DeleteBySource(_ context.Context, sourceFile string) error {
	f.deletedSource = sourceFile
	if f.upsertChunks != nil {
		f.deleteAfterUp = true
	}
	return nil
}

func (f *indexVectorFake) Query(context.Context, []float32, int) ([]domain.VectorMatch, error) {
	return nil, errors.New("not implemented")
}

func (f *indexVectorFake) GetAll(context.Context) ([]domain.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (f *indexVectorFake) Count(context.Context) (int, error) {
	return 0, errors.New("not implemented")
}

func seedBatch(repo *ingestRepoFake, id string, replace bool, texts ...string) {
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{ID: id + "-" + text, Text: text, SourceFile: "seed.pdf", ChunkIndex: i})
	}
	repo.batches[id] = &domain.ChunkBatch{
		ID:            id,
		SourceFile:    "seed.pdf",
		ReplaceSource: replace,
		ChunkCount:    len(chunks),
		Status:        domain.BatchStatusPending,
	}
	repo.chunks[id] = chunks
}

func TestIndexBatchSuccess(t *testing.T) {
	repo := newIngestRepoFake()
	seedBatch(repo, "batch-1", false, "alpha", "beta", "gamma")
	embedder := &indexEmbedderFake{}
	vector := &indexVectorFake{}
	queue := &ingestQueueFake{}
	uc := NewIndexCorpusUseCase(repo, embedder, vector, queue, 32)

	if err := uc.IndexBatch(context.Background(), "batch-1"); err != nil {
		t.Fatalf("IndexBatch() error = %v", err)
	}
	if len(vector.upsertChunks) != 3 || len(vector.upsertVectors) != 3 {
		t.Fatalf("expected 3 chunks upserted, got %d/%d", len(vector.upsertChunks), len(vector.upsertVectors))
	}
	if vector.deletedSource != "" {
		t.Fatalf("expected no source delete without replace flag, got %s", vector.deletedSource)
	}
	if repo.updated["batch-1"] != domain.BatchStatusIndexed {
		t.Fatalf("expected indexed status, got %s", repo.updated["batch-1"])
	}
	if queue.indexedBatchID != "batch-1" {
		t.Fatalf("expected corpus indexed event, got %q", queue.indexedBatchID)
	}
}

func TestIndexBatchKeepsVectorsAlignedAcrossSubBatches(t *testing.T) {
	repo := newIngestRepoFake()
	seedBatch(repo, "batch-1", false, "a", "bb", "ccc", "dddd", "eeeee")
	embedder := &indexEmbedderFake{}
	vector := &indexVectorFake{}
	uc := NewIndexCorpusUseCase(repo, embedder, vector, &ingestQueueFake{}, 2)

	if err := uc.IndexBatch(context.Background(), "batch-1"); err != nil {
		t.Fatalf("IndexBatch() error = %v", err)
	}
	if embedder.calls != 3 {
		t.Fatalf("expected 3 embed sub-batches, got %d", embedder.calls)
	}
	for i, chunk := range vector.upsertChunks {
		if vector.upsertVectors[i][0] != float32(len(chunk.Text)) {
			t.Fatalf("vector misaligned at %d: chunk %q got %v", i, chunk.Text, vector.upsertVectors[i])
		}
	}
}

func TestIndexBatchReplaceSourceDeletesBeforeUpsert(t *testing.T) {
	repo := newIngestRepoFake()
	seedBatch(repo, "batch-1", true, "alpha")
	vector := &indexVectorFake{}
	uc := NewIndexCorpusUseCase(repo, &indexEmbedderFake{}, vector, &ingestQueueFake{}, 32)

	if err := uc.IndexBatch(context.Background(), "batch-1"); err != nil {
		t.Fatalf("IndexBatch() error = %v", err)
	}
	if vector.deletedSource != "seed.pdf" {
		t.Fatalf("expected replaced source deleted, got %q", vector.deletedSource)
	}
	if vector.deleteAfterUp {
		t.Fatalf("expected delete to happen before upsert")
	}
}

func TestIndexBatchEmbedderFailureMarksFailed(t *testing.T) {
	repo := newIngestRepoFake()
	seedBatch(repo, "batch-1", false, "alpha")
	embedder := &indexEmbedderFake{err: errors.New("embedder down")}
	queue := &ingestQueueFake{}
	uc := NewIndexCorpusUseCase(repo, embedder, &indexVectorFake{}, queue, 32)

	err := uc.IndexBatch(context.Background(), "batch-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if repo.updated["batch-1"] != domain.BatchStatusFailed {
		t.Fatalf("expected failed status, got %s", repo.updated["batch-1"])
	}
	if repo.errMsgs["batch-1"] == "" {
		t.Fatalf("expected failure message recorded")
	}
	if queue.indexedBatchID != "" {
		t.Fatalf("expected no indexed event on failure, got %q", queue.indexedBatchID)
	}
}

func TestIndexBatchSkipsAlreadyIndexed(t *testing.T) {
	repo := newIngestRepoFake()
	seedBatch(repo, "batch-1", false, "alpha")
	repo.batches["batch-1"].Status = domain.BatchStatusIndexed
	embedder := &indexEmbedderFake{}
	uc := NewIndexCorpusUseCase(repo, embedder, &indexVectorFake{}, &ingestQueueFake{}, 32)

	if err := uc.IndexBatch(context.Background(), "batch-1"); err != nil {
		t.Fatalf("IndexBatch() error = %v", err)
	}
	if embedder.calls != 0 {
		t.Fatalf("expected redelivery acknowledged without work, got %d embed calls", embedder.calls)
	}
}

func TestIndexBatchUnknownBatch(t *testing.T) {
	uc := NewIndexCorpusUseCase(newIngestRepoFake(), &indexEmbedderFake{}, &indexVectorFake{}, &ingestQueueFake{}, 32)

	err := uc.IndexBatch(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrBatchNotFound) {
		t.Fatalf("expected batch not found, got %v", err)
	}
}

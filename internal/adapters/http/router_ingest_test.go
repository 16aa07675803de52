package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{SearchTopK: 5})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestIngestChunksAccepted(t *testing.T) {
	ingestor := &ingestFake{}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, ingestor, &batchReaderFake{}, &adminFake{}, nil,
	).Handler()

	payload, _ := json.Marshal(map[string]any{
		"source_file":    "arias2020.pdf",
		"replace_source": true,
		"chunks": []map[string]any{
			{"id": "sha256:aa11", "text": "first chunk", "metadata": map[string]string{"page": "1"}},
			{"text": "second chunk"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chunks", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var batch domain.ChunkBatch
	if err := json.NewDecoder(res.Body).Decode(&batch); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if batch.ID == "" {
		t.Fatalf("expected batch id in response")
	}
	if batch.ChunkCount != 2 {
		t.Fatalf("expected chunk count 2, got %d", batch.ChunkCount)
	}

	if ingestor.gotSource != "arias2020.pdf" || !ingestor.gotReplace {
		t.Fatalf("unexpected ingest args: source=%q replace=%v", ingestor.gotSource, ingestor.gotReplace)
	}
	if len(ingestor.gotChunks) != 2 || ingestor.gotChunks[0].Metadata["page"] != "1" {
		t.Fatalf("unexpected chunks passed to usecase: %+v", ingestor.gotChunks)
	}
	if ingestor.gotChunks[0].ID != "sha256:aa11" || ingestor.gotChunks[1].ID != "" {
		t.Fatalf("unexpected chunk ids passed to usecase: %+v", ingestor.gotChunks)
	}
}

func TestIngestChunksRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(config.Config{SearchTopK: 5})

	req := httptest.NewRequest(http.MethodPost, "/v1/chunks", bytes.NewBufferString("not-json"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetBatchByID(t *testing.T) {
	reader := &batchReaderFake{batch: &domain.ChunkBatch{
		ID:         "batch-7",
		SourceFile: "metrology.pdf",
		ChunkCount: 12,
		Status:     domain.BatchStatusIndexed,
	}}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, reader, &adminFake{}, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/batch-7", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var batch domain.ChunkBatch
	if err := json.NewDecoder(res.Body).Decode(&batch); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if batch.ID != "batch-7" || batch.Status != domain.BatchStatusIndexed {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestGetBatchRequiresID(t *testing.T) {
	handler := newTestHandler(config.Config{SearchTopK: 5})

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestIngestChunksMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(config.Config{SearchTopK: 5})

	req := httptest.NewRequest(http.MethodGet, "/v1/chunks", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

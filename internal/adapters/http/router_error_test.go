package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

func TestSearchMapsDomainInvalidInputTo400(t *testing.T) {
	searcher := &searchFake{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("empty query"))}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		searcher, &ingestFake{}, &batchReaderFake{}, &adminFake{}, nil,
	).Handler()

	payload, _ := json.Marshal(map[string]any{"query": "test"})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetBatchReturns404ForNotFound(t *testing.T) {
	reader := &batchReaderFake{err: domain.WrapError(domain.ErrBatchNotFound, "batch lookup", errors.New("id=missing"))}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, reader, &adminFake{}, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestIngestMapsTemporaryErrorTo503(t *testing.T) {
	ingestor := &ingestFake{err: domain.WrapError(domain.ErrTemporary, "publish ingestion event", errors.New("no nats servers"))}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, ingestor, &batchReaderFake{}, &adminFake{}, nil,
	).Handler()

	payload, _ := json.Marshal(map[string]any{
		"source_file": "a.pdf",
		"chunks":      []map[string]any{{"text": "chunk"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chunks", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestRebuildMapsUnknownErrorTo500(t *testing.T) {
	admin := &adminFake{rebuildErr: errors.New("load corpus: connection refused")}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, &batchReaderFake{}, admin, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/reindex", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}

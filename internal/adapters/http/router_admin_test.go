package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

func TestStatsReportsEngineSnapshot(t *testing.T) {
	admin := &adminFake{stats: domain.EngineStats{
		CorpusChunks:   42,
		Lexical:        domain.LexicalStats{Documents: 42, Terms: 310, AvgDocLength: 18.5},
		ResultCache:    domain.CacheStats{Size: 3, Capacity: 1000, Hits: 7, Misses: 5},
		FusionStrategy: "weighted",
		SemanticWeight: 0.7,
		LexicalWeight:  0.3,
	}}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, &batchReaderFake{}, admin, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var stats domain.EngineStats
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.CorpusChunks != 42 || stats.FusionStrategy != "weighted" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ResultCache.Hits != 7 {
		t.Fatalf("expected cache hits in stats, got %+v", stats.ResultCache)
	}
}

func TestRebuildIndexReportsDocumentCount(t *testing.T) {
	admin := &adminFake{rebuildDocs: 128}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, &batchReaderFake{}, admin, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/reindex", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["documents"] != 128 {
		t.Fatalf("expected 128 documents, got %d", resp["documents"])
	}
}

func TestFlushCachesReturns204(t *testing.T) {
	admin := &adminFake{}
	handler := NewRouter(
		config.Config{SearchTopK: 5},
		&searchFake{}, &ingestFake{}, &batchReaderFake{}, admin, nil,
	).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if !admin.cleared {
		t.Fatalf("expected ClearCaches to be called")
	}
}

func TestFlushCachesRequiresDelete(t *testing.T) {
	handler := newTestHandler(config.Config{SearchTopK: 5})

	req := httptest.NewRequest(http.MethodPost, "/v1/cache", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

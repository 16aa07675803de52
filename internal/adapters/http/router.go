package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/core/ports"
	"github.com/vmaslov/retrieval-engine/internal/observability/metrics"
)

type Router struct {
	cfg      config.Config
	searcher ports.SearchService
	ingestor ports.ChunkIngestor
	batches  ports.BatchReader
	admin    ports.EngineAdmin
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	searcher ports.SearchService,
	ingestor ports.ChunkIngestor,
	batches ports.BatchReader,
	admin ports.EngineAdmin,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		searcher: searcher,
		ingestor: ingestor,
		batches:  batches,
		admin:    admin,
		metrics:  serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/chunks", rt.ingestChunks)
	mux.HandleFunc("/v1/batches/", rt.getBatchByID)
	mux.HandleFunc("/v1/stats", rt.stats)
	mux.HandleFunc("/v1/cache", rt.flushCaches)
	mux.HandleFunc("/v1/reindex", rt.rebuildIndex)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, defaultBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  *int   `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	topK := rt.cfg.SearchTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	started := time.Now()
	results, err := rt.searcher.Search(r.Context(), req.Query, topK)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.cfg.FusionStrategy, len(results), time.Since(started))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (rt *Router) ingestChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		SourceFile    string `json:"source_file"`
		ReplaceSource bool   `json:"replace_source"`
		Chunks        []struct {
			ID       string            `json:"id"`
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata"`
		} `json:"chunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	chunks := make([]domain.Chunk, 0, len(req.Chunks))
	for _, c := range req.Chunks {
		chunks = append(chunks, domain.Chunk{ID: c.ID, Text: c.Text, Metadata: c.Metadata})
	}

	batch, err := rt.ingestor.IngestBatch(r.Context(), req.SourceFile, req.ReplaceSource, chunks)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIngest(batch.ChunkCount)
	}

	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) getBatchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}

	batch, err := rt.batches.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.admin.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) flushCaches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rt.admin.ClearCaches()
	if rt.metrics != nil {
		rt.metrics.RecordCacheFlush()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	started := time.Now()
	documents, err := rt.admin.RebuildIndex(r.Context())
	if rt.metrics != nil {
		rt.metrics.RecordRebuild(documents, time.Since(started), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"documents": documents})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

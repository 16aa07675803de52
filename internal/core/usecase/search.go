package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vmaslov/retrieval-engine/internal/core/cache"
	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/core/lexical"
	"github.com/vmaslov/retrieval-engine/internal/core/ports"
)

const (
	StrategyWeighted = "weighted"
	StrategyRRF      = "rrf"
)

// SearchParams fixes the pipeline tunables for the lifetime of one
// engine instance. Changing any ranking knob changes the result-cache
// version, so restarts with new weights never serve stale blends.
type SearchParams struct {
	DefaultTopK     int
	CandidateFactor int
	Strategy        string
	Fusion          FusionWeights
	MinScore        float64
	RRFK            int
	RerankWeights   RerankWeights
	Lexical         lexical.Params
	Workers         int
	RetrieveTimeout time.Duration
}

func DefaultSearchParams() SearchParams {
	return SearchParams{
		DefaultTopK:     5,
		CandidateFactor: 3,
		Strategy:        StrategyWeighted,
		Fusion:          FusionWeights{Semantic: 0.7, Lexical: 0.3},
		MinScore:        0.1,
		RRFK:            60,
		RerankWeights:   RerankWeights{Hybrid: 0.6, Model: 0.4},
		Lexical:         lexical.DefaultParams(),
		Workers:         4,
		RetrieveTimeout: 5 * time.Second,
	}
}

func (p SearchParams) normalize() SearchParams {
	def := DefaultSearchParams()
	if p.DefaultTopK <= 0 {
		p.DefaultTopK = def.DefaultTopK
	}
	if p.CandidateFactor < 1 {
		p.CandidateFactor = def.CandidateFactor
	}
	if p.Strategy != StrategyRRF {
		p.Strategy = StrategyWeighted
	}
	if p.Fusion.Semantic <= 0 && p.Fusion.Lexical <= 0 {
		p.Fusion = def.Fusion
	}
	if p.RRFK <= 0 {
		p.RRFK = def.RRFK
	}
	if p.RerankWeights.Hybrid <= 0 && p.RerankWeights.Model <= 0 {
		p.RerankWeights = def.RerankWeights
	}
	if p.Workers <= 0 {
		p.Workers = def.Workers
	}
	if p.RetrieveTimeout <= 0 {
		p.RetrieveTimeout = def.RetrieveTimeout
	}
	return p
}

// version tags result-cache keys with every knob that changes ranking.
func (p SearchParams) version() string {
	return fmt.Sprintf("%s:%g:%g:%g:%d:%g:%g",
		p.Strategy, p.Fusion.Semantic, p.Fusion.Lexical, p.MinScore,
		p.RRFK, p.RerankWeights.Hybrid, p.RerankWeights.Model)
}

// SearchUseCase coordinates one query through cache check, parallel
// retrieval, fusion, filtering, reranking and cache store. It owns the
// result and embedding caches, the lexical index snapshot and the
// worker pool bounding all blocking calls; one instance serves every
// concurrent query.
type SearchUseCase struct {
	embedder     ports.Embedder
	vectorStore  ports.VectorStore
	crossEncoder ports.CrossEncoder

	params     SearchParams
	weightsVer string

	lexicalIdx atomic.Pointer[lexical.Index]
	results    *cache.ResultCache
	embeddings *cache.EmbeddingCache
	workers    *semaphore.Weighted
}

func NewSearchUseCase(
	embedder ports.Embedder,
	vectorStore ports.VectorStore,
	crossEncoder ports.CrossEncoder,
	results *cache.ResultCache,
	embeddings *cache.EmbeddingCache,
	params SearchParams,
) *SearchUseCase {
	params = params.normalize()
	uc := &SearchUseCase{
		embedder:     embedder,
		vectorStore:  vectorStore,
		crossEncoder: crossEncoder,
		params:       params,
		weightsVer:   params.version(),
		results:      results,
		embeddings:   embeddings,
		workers:      semaphore.NewWeighted(int64(params.Workers)),
	}
	// Serve an empty corpus until the first rebuild installs the real one.
	uc.lexicalIdx.Store(lexical.NewIndex(nil, params.Lexical))
	return uc
}

func (uc *SearchUseCase) DefaultTopK() int {
	return uc.params.DefaultTopK
}

// Search answers one query. An empty query is a caller error; a
// non-positive topK yields an empty result without error. Per-path
// retrieval failures and reranker failures degrade the answer and are
// logged, never returned, except a dimension mismatch which signals a
// broken deployment.
func (uc *SearchUseCase) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("empty query"))
	}
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}

	key := cache.Key(query, topK, uc.weightsVer)
	if hit, ok := uc.results.Get(key); ok {
		return hit, nil
	}

	candidatePool := topK * uc.params.CandidateFactor
	semantic, lexicalOut := uc.retrieveParallel(ctx, query, candidatePool)

	if semantic.err != nil && domain.IsKind(semantic.err, domain.ErrInvalidConfig) {
		return nil, semantic.err
	}
	if semantic.err != nil && lexicalOut.err != nil {
		slog.Error("search_degraded", "stage", "retrieve", "query", query,
			"semantic_error", semantic.err, "lexical_error", lexicalOut.err)
		return []domain.SearchResult{}, nil
	}
	degraded := false
	if semantic.err != nil {
		degraded = true
		slog.Warn("search_degraded", "stage", "semantic", "query", query, "error", semantic.err)
	}
	if lexicalOut.err != nil {
		degraded = true
		slog.Warn("search_degraded", "stage", "lexical", "query", query, "error", lexicalOut.err)
	}

	var fused []domain.CandidateResult
	switch uc.params.Strategy {
	case StrategyRRF:
		fused = fuseCandidatesRRF(semantic.candidates, lexicalOut.candidates, uc.params.RRFK)
	default:
		fused = fuseCandidatesWeighted(semantic.candidates, lexicalOut.candidates, uc.params.Fusion)
		fused = filterCandidates(fused, uc.params.MinScore)
	}

	results := []domain.SearchResult{}
	rerankOK := true
	if len(fused) > 0 {
		var reranked []domain.CandidateResult
		reranked, rerankOK = uc.rerankTop(ctx, query, fused, candidatePool)
		results = uc.toSearchResults(trimCandidates(reranked, topK))
	}

	// Degraded answers are not cached: one failed path or reranker must
	// not pin a weaker ranking for a whole TTL.
	if !degraded && rerankOK {
		uc.results.Put(key, results)
	}
	return results, nil
}

type retrievalOutcome struct {
	candidates []domain.CandidateResult
	err        error
}

// retrieveParallel dispatches both retrieval paths and waits for both
// to settle. This is a join point, not a race: fusion never proceeds on
// a single path while the other is still running.
func (uc *SearchUseCase) retrieveParallel(ctx context.Context, query string, limit int) (semantic, lexicalOut retrievalOutcome) {
	semCh := make(chan retrievalOutcome, 1)
	lexCh := make(chan retrievalOutcome, 1)

	go func() {
		candidates, err := uc.semanticSearch(ctx, query, limit)
		semCh <- retrievalOutcome{candidates: candidates, err: err}
	}()
	go func() {
		candidates, err := uc.lexicalSearch(ctx, query, limit)
		lexCh <- retrievalOutcome{candidates: candidates, err: err}
	}()

	semantic = <-semCh
	lexicalOut = <-lexCh
	return semantic, lexicalOut
}

func (uc *SearchUseCase) semanticSearch(ctx context.Context, query string, limit int) ([]domain.CandidateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.params.RetrieveTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("semantic path: %w", err)
	}

	vector, err := uc.embeddings.GetOrCompute(ctx, query, func(embedCtx context.Context, text string) ([]float32, error) {
		if err := uc.workers.Acquire(embedCtx, 1); err != nil {
			return nil, err
		}
		defer uc.workers.Release(1)
		return uc.embedder.EmbedQuery(embedCtx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if err := uc.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire retrieval worker: %w", err)
	}
	matches, err := uc.vectorStore.Query(ctx, vector, limit)
	uc.workers.Release(1)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	out := make([]domain.CandidateResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.CandidateResult{
			ChunkID:       m.ChunkID,
			Text:          m.Text,
			SourceFile:    m.SourceFile,
			Metadata:      m.Metadata,
			SemanticScore: similarityFromDistance(m.Distance),
		})
	}
	return out, nil
}

func (uc *SearchUseCase) lexicalSearch(ctx context.Context, query string, limit int) ([]domain.CandidateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.params.RetrieveTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lexical path: %w", err)
	}

	if err := uc.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire retrieval worker: %w", err)
	}
	ix := uc.lexicalIdx.Load()
	hits := ix.Search(query, limit)
	uc.workers.Release(1)

	out := make([]domain.CandidateResult, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := ix.Chunk(hit.ChunkID)
		if !ok {
			continue
		}
		out = append(out, domain.CandidateResult{
			ChunkID:      chunk.ID,
			Text:         chunk.Text,
			SourceFile:   chunk.SourceFile,
			Metadata:     chunk.Metadata,
			LexicalScore: hit.Score,
		})
	}
	return out, nil
}

// RebuildIndex loads the corpus the vector store holds, builds a fresh
// lexical index and swaps it in atomically. In-flight queries keep the
// snapshot they started with. The result cache is purged because cached
// answers may reference replaced chunks.
func (uc *SearchUseCase) RebuildIndex(ctx context.Context) (int, error) {
	started := time.Now()
	chunks, err := uc.vectorStore.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	ix := lexical.NewIndex(chunks, uc.params.Lexical)
	uc.lexicalIdx.Store(ix)
	uc.results.Purge()
	slog.Info("lexical_rebuild", "documents", ix.Len(), "duration_ms", time.Since(started).Milliseconds())
	return ix.Len(), nil
}

func (uc *SearchUseCase) ClearCaches() {
	uc.results.Purge()
	uc.embeddings.Purge()
}

func (uc *SearchUseCase) Stats(ctx context.Context) (domain.EngineStats, error) {
	ix := uc.lexicalIdx.Load()
	corpusChunks, err := uc.vectorStore.Count(ctx)
	if err != nil {
		// Stats stay available when the store is unreachable; the
		// lexical view is the best local approximation.
		slog.Warn("stats_degraded", "error", err)
		corpusChunks = ix.Len()
	}
	return domain.EngineStats{
		CorpusChunks:   corpusChunks,
		Lexical:        ix.Stats(),
		ResultCache:    uc.results.Stats(),
		EmbeddingCache: uc.embeddings.Stats(),
		FusionStrategy: uc.params.Strategy,
		SemanticWeight: uc.params.Fusion.Semantic,
		LexicalWeight:  uc.params.Fusion.Lexical,
	}, nil
}

func (uc *SearchUseCase) toSearchResults(candidates []domain.CandidateResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.SearchResult{
			ChunkID:    c.ChunkID,
			Text:       c.Text,
			SourceFile: c.SourceFile,
			FinalScore: finalScore(c, uc.params.RerankWeights),
			Metadata:   c.Metadata,
		})
	}
	return out
}

// similarityFromDistance maps a cosine distance in [0,2] onto [0,1].
func similarityFromDistance(distance float64) float64 {
	similarity := 1 - distance
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

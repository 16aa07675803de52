package config

import "testing"

func TestLoadIncludesFusionDefaults(t *testing.T) {
	t.Setenv("FUSION_STRATEGY", "")
	t.Setenv("FUSION_SEMANTIC_WEIGHT", "")
	t.Setenv("FUSION_LEXICAL_WEIGHT", "")
	t.Setenv("FUSION_MIN_SCORE", "")
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("RERANK_HYBRID_WEIGHT", "")
	t.Setenv("RERANK_MODEL_WEIGHT", "")

	cfg := Load()
	if cfg.FusionStrategy != "weighted" {
		t.Fatalf("expected default fusion strategy weighted, got %q", cfg.FusionStrategy)
	}
	if cfg.FusionSemanticWeight != 0.7 {
		t.Fatalf("expected default semantic weight 0.7, got %g", cfg.FusionSemanticWeight)
	}
	if cfg.FusionLexicalWeight != 0.3 {
		t.Fatalf("expected default lexical weight 0.3, got %g", cfg.FusionLexicalWeight)
	}
	if cfg.FusionMinScore != 0.1 {
		t.Fatalf("expected default min score 0.1, got %g", cfg.FusionMinScore)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.RerankHybridWeight != 0.6 {
		t.Fatalf("expected default rerank hybrid weight 0.6, got %g", cfg.RerankHybridWeight)
	}
	if cfg.RerankModelWeight != 0.4 {
		t.Fatalf("expected default rerank model weight 0.4, got %g", cfg.RerankModelWeight)
	}
}

func TestLoadParsesRetrievalOverrides(t *testing.T) {
	t.Setenv("FUSION_STRATEGY", "rrf")
	t.Setenv("FUSION_SEMANTIC_WEIGHT", "0.6")
	t.Setenv("SEARCH_TOP_K", "8")
	t.Setenv("SEARCH_CANDIDATE_FACTOR", "4")
	t.Setenv("BM25_K1", "1.2")
	t.Setenv("RESULT_CACHE_TTL_SECONDS", "120")

	cfg := Load()
	if cfg.FusionStrategy != "rrf" {
		t.Fatalf("expected fusion strategy override, got %q", cfg.FusionStrategy)
	}
	if cfg.FusionSemanticWeight != 0.6 {
		t.Fatalf("expected semantic weight 0.6, got %g", cfg.FusionSemanticWeight)
	}
	if cfg.SearchTopK != 8 {
		t.Fatalf("expected top k 8, got %d", cfg.SearchTopK)
	}
	if cfg.SearchCandidateFactor != 4 {
		t.Fatalf("expected candidate factor 4, got %d", cfg.SearchCandidateFactor)
	}
	if cfg.BM25K1 != 1.2 {
		t.Fatalf("expected bm25 k1 1.2, got %g", cfg.BM25K1)
	}
	if cfg.ResultCacheTTLSeconds != 120 {
		t.Fatalf("expected cache ttl 120, got %d", cfg.ResultCacheTTLSeconds)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("FUSION_SEMANTIC_WEIGHT", "not-a-number")
	t.Setenv("SEARCH_TOP_K", "many")

	cfg := Load()
	if cfg.FusionSemanticWeight != 0.7 {
		t.Fatalf("expected fallback semantic weight 0.7, got %g", cfg.FusionSemanticWeight)
	}
	if cfg.SearchTopK != 5 {
		t.Fatalf("expected fallback top k 5, got %d", cfg.SearchTopK)
	}
}

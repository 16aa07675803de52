package domain

type CacheStats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

type LexicalStats struct {
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// EngineStats is the operational snapshot exposed on the stats endpoint.
type EngineStats struct {
	CorpusChunks   int          `json:"corpus_chunks"`
	Lexical        LexicalStats `json:"lexical"`
	ResultCache    CacheStats   `json:"result_cache"`
	EmbeddingCache CacheStats   `json:"embedding_cache"`
	FusionStrategy string       `json:"fusion_strategy"`
	SemanticWeight float64      `json:"semantic_weight"`
	LexicalWeight  float64      `json:"lexical_weight"`
}

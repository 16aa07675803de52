package domain

// CandidateResult is the per-query working record carried through
// retrieval, fusion and reranking. It is created fresh for every query
// and never persisted.
type CandidateResult struct {
	ChunkID       string
	Text          string
	SourceFile    string
	Metadata      map[string]string
	SemanticScore float64
	LexicalScore  float64
	HybridScore   float64
	RerankScore   *float64
}

// SearchResult is the externally visible search hit.
type SearchResult struct {
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	SourceFile string            `json:"source_file"`
	FinalScore float64           `json:"final_score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// VectorMatch is one k-NN hit as reported by the vector store.
// Distance is the store's raw cosine distance, smaller is closer.
type VectorMatch struct {
	ChunkID    string
	Text       string
	SourceFile string
	ChunkIndex int
	Metadata   map[string]string
	Distance   float64
}

package domain

import "time"

type BatchStatus string

const (
	BatchStatusPending BatchStatus = "pending"
	BatchStatusIndexed BatchStatus = "indexed"
	BatchStatusFailed  BatchStatus = "failed"
)

// Chunk is the immutable unit of retrievable text. The ID uniquely
// determines the content; reindexing a source replaces its chunks,
// it never mutates them in place.
type Chunk struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	SourceFile string            `json:"source_file"`
	ChunkIndex int               `json:"chunk_index"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ChunkBatch tracks one ingest call through the indexing pipeline.
type ChunkBatch struct {
	ID            string      `json:"id"`
	SourceFile    string      `json:"source_file"`
	ReplaceSource bool        `json:"replace_source"`
	ChunkCount    int         `json:"chunk_count"`
	Status        BatchStatus `json:"status"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

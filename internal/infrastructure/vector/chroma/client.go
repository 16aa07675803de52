package chroma

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/httpx"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
)

// getPageSize bounds one /get page when streaming the whole corpus out
// for a lexical rebuild.
const getPageSize = 500

// Client talks to a Chroma server over its REST API. Collections are
// resolved by name to their UUID once and reused; the collection is
// created on first use with cosine distance, so query results carry
// distances in [0,2].
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu     sync.Mutex
	collectionID string
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure resolves the collection eagerly so startup fails fast when the
// store is unreachable.
func (c *Client) Ensure(ctx context.Context) error {
	_, err := c.ensureCollection(ctx)
	return err
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(chunks))
	documents := make([]string, 0, len(chunks))
	metadatas := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
		documents = append(documents, chunk.Text)
		metadatas = append(metadatas, chunkMetadata(chunk))
	}

	payload := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return c.do(ctx, "upsert", http.MethodPost, "/collections/"+collectionID+"/upsert", payload, nil)
}

func (c *Client) Query(ctx context.Context, queryVector []float32, topN int) ([]domain.VectorMatch, error) {
	if topN <= 0 {
		return nil, nil
	}

	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"query_embeddings": [][]float32{queryVector},
		"n_results":        topN,
		"include":          []string{"documents", "metadatas", "distances"},
	}

	var response struct {
		IDs       [][]string         `json:"ids"`
		Distances [][]float64        `json:"distances"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	if err := c.do(ctx, "query", http.MethodPost, "/collections/"+collectionID+"/query", payload, &response); err != nil {
		return nil, err
	}
	if len(response.IDs) == 0 {
		return nil, nil
	}

	row := response.IDs[0]
	out := make([]domain.VectorMatch, 0, len(row))
	for i, id := range row {
		match := domain.VectorMatch{ChunkID: id}
		if len(response.Distances) > 0 && i < len(response.Distances[0]) {
			match.Distance = response.Distances[0][i]
		}
		if len(response.Documents) > 0 && i < len(response.Documents[0]) {
			match.Text = response.Documents[0][i]
		}
		if len(response.Metadatas) > 0 && i < len(response.Metadatas[0]) {
			applyMetadata(&match, response.Metadatas[0][i])
		}
		out = append(out, match)
	}
	return out, nil
}

// GetAll pages the whole collection out. Used only for lexical index
// rebuilds, never on the query path.
func (c *Client) GetAll(ctx context.Context) ([]domain.Chunk, error) {
	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for offset := 0; ; offset += getPageSize {
		payload := map[string]any{
			"limit":   getPageSize,
			"offset":  offset,
			"include": []string{"documents", "metadatas"},
		}

		var response struct {
			IDs       []string         `json:"ids"`
			Documents []string         `json:"documents"`
			Metadatas []map[string]any `json:"metadatas"`
		}
		if err := c.do(ctx, "get", http.MethodPost, "/collections/"+collectionID+"/get", payload, &response); err != nil {
			return nil, err
		}

		for i, id := range response.IDs {
			chunk := domain.Chunk{ID: id}
			if i < len(response.Documents) {
				chunk.Text = response.Documents[i]
			}
			if i < len(response.Metadatas) {
				chunk.SourceFile = metadataString(response.Metadatas[i], "source_file")
				chunk.ChunkIndex = metadataInt(response.Metadatas[i], "chunk_index")
				chunk.Metadata = extraMetadata(response.Metadatas[i])
			}
			chunks = append(chunks, chunk)
		}

		if len(response.IDs) < getPageSize {
			return chunks, nil
		}
	}
}

func (c *Client) DeleteBySource(ctx context.Context, sourceFile string) error {
	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"where": map[string]any{"source_file": sourceFile},
	}
	return c.do(ctx, "delete", http.MethodPost, "/collections/"+collectionID+"/delete", payload, nil)
}

func (c *Client) Count(ctx context.Context) (int, error) {
	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}

	// The count endpoint answers with a bare integer.
	var count int
	if err := c.do(ctx, "count", http.MethodGet, "/collections/"+collectionID+"/count", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Client) ensureCollection(ctx context.Context) (string, error) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	payload := map[string]any{
		"name":          c.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "ensure collection", http.MethodPost, "/collections", payload, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("chroma ensure collection: empty collection id")
	}
	c.collectionID = response.ID
	return c.collectionID, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	call := func(callCtx context.Context) error {
		return c.sendJSON(callCtx, method, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "chroma."+opKey(operation), call, httpx.Classify)
	} else {
		err = call(ctx)
	}
	return httpx.WrapTemporary("chroma "+operation, err)
}

func opKey(operation string) string {
	return strings.ReplaceAll(operation, " ", "_")
}

func chunkMetadata(chunk domain.Chunk) map[string]any {
	meta := map[string]any{
		"source_file": chunk.SourceFile,
		"chunk_index": chunk.ChunkIndex,
	}
	for k, v := range chunk.Metadata {
		if k == "source_file" || k == "chunk_index" {
			continue
		}
		meta[k] = v
	}
	return meta
}

func applyMetadata(match *domain.VectorMatch, meta map[string]any) {
	match.SourceFile = metadataString(meta, "source_file")
	match.ChunkIndex = metadataInt(meta, "chunk_index")
	match.Metadata = extraMetadata(meta)
}

func extraMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string)
	for k := range meta {
		if k == "source_file" || k == "chunk_index" {
			continue
		}
		out[k] = metadataString(meta, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func metadataString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metadataInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunk_batches (
	id TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	replace_source BOOLEAN NOT NULL DEFAULT FALSE,
	chunk_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES chunk_batches(id) ON DELETE CASCADE,
	source_file TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_text TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_chunk_batches_status ON chunk_batches(status);
CREATE INDEX IF NOT EXISTS idx_chunks_batch_id ON chunks(batch_id, chunk_index);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) SaveBatch(ctx context.Context, batch *domain.ChunkBatch, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO chunk_batches (
	id, source_file, replace_source, chunk_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		batch.ID, batch.SourceFile, batch.ReplaceSource, batch.ChunkCount,
		string(batch.Status), batch.Error, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chunk batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, batch_id, source_file, chunk_index, chunk_text, metadata)
VALUES ($1,$2,$3,$4,$5,$6)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, batch.ID, chunk.SourceFile, chunk.ChunkIndex, chunk.Text, metadataJSON); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetBatch(ctx context.Context, batchID string) (*domain.ChunkBatch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, source_file, replace_source, chunk_count, status, error_message, created_at, updated_at
FROM chunk_batches
WHERE id = $1
`, batchID)

	var batch domain.ChunkBatch
	var status string

	err := row.Scan(
		&batch.ID, &batch.SourceFile, &batch.ReplaceSource, &batch.ChunkCount,
		&status, &batch.Error, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrBatchNotFound, "batch lookup", err)
		}
		return nil, fmt.Errorf("scan chunk batch: %w", err)
	}

	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}

func (r *ChunkRepository) ListBatchChunks(ctx context.Context, batchID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, source_file, chunk_index, chunk_text, metadata
FROM chunks
WHERE batch_id = $1
ORDER BY chunk_index
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var metadataRaw []byte
		if err := rows.Scan(&chunk.ID, &chunk.SourceFile, &chunk.ChunkIndex, &chunk.Text, &metadataRaw); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) UpdateBatchStatus(ctx context.Context, batchID string, status domain.BatchStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE chunk_batches
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, batchID, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("batch status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrBatchNotFound, "update batch status", sql.ErrNoRows)
	}
	return nil
}

package semantic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store holds journal embeddings in pgvector.
type Store struct {
	pool *pgxpool.Pool
}

// SearchResult is one vector similarity hit.
type SearchResult struct {
	JournalID int64
	Distance  float64 // cosine distance, lower is more similar
}

// NewStore connects to Postgres and verifies the connection.
func NewStore(ctx context.Context, pgURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Init creates the extension, table, and index if missing.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS journal_embeddings (
			journal_id   BIGINT PRIMARY KEY,
			embedding    vector(768) NOT NULL,
			content_hash TEXT NOT NULL,
			model_name   TEXT NOT NULL DEFAULT 'nomic-embed-text-v1.5',
			embedded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create journal_embeddings table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_journal_embeddings_hnsw
		ON journal_embeddings
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`)
	if err != nil {
		return fmt.Errorf("create HNSW index: %w", err)
	}

	slog.Info("semantic store initialized")
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InsertBatch upserts embeddings for multiple journal entries in one transaction.
func (s *Store) InsertBatch(ctx context.Context, journalIDs []int64, embeddings [][]float32, contentHashes []string) error {
	if len(journalIDs) != len(embeddings) || len(journalIDs) != len(contentHashes) {
		return fmt.Errorf("mismatched batch sizes: ids=%d embeddings=%d hashes=%d",
			len(journalIDs), len(embeddings), len(contentHashes))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range journalIDs {
		vec := pgvector.NewVector(embeddings[i])
		_, err := tx.Exec(ctx, `
			INSERT INTO journal_embeddings (journal_id, embedding, content_hash, embedded_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (journal_id) DO UPDATE
			SET embedding = EXCLUDED.embedding,
				content_hash = EXCLUDED.content_hash,
				embedded_at = now()
		`, journalIDs[i], vec, contentHashes[i])
		if err != nil {
			return fmt.Errorf("insert embedding %d: %w", journalIDs[i], err)
		}
	}
	return tx.Commit(ctx)
}

// Search returns the top-K most similar journal entries by cosine distance.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	vec := pgvector.NewVector(queryEmbedding)
	rows, err := s.pool.Query(ctx, `
		SELECT journal_id, embedding <=> $1 AS distance
		FROM journal_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.JournalID, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetEmbedded returns all embedded journal IDs with their content hashes.
func (s *Store) GetEmbedded(ctx context.Context) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT journal_id, content_hash FROM journal_embeddings")
	if err != nil {
		return nil, fmt.Errorf("get embedded: %w", err)
	}
	defer rows.Close()

	embedded := make(map[int64]string)
	for rows.Next() {
		var id int64
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan embedded: %w", err)
		}
		embedded[id] = hash
	}
	return embedded, rows.Err()
}

// Delete removes one journal entry's embedding.
func (s *Store) Delete(ctx context.Context, journalID int64) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM journal_embeddings WHERE journal_id = $1", journalID)
	return err
}

// Stats returns the embedding count.
func (s *Store) Stats(ctx context.Context) (count int, err error) {
	err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM journal_embeddings").Scan(&count)
	return
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const pgRegistry = `CREATE TABLE IF NOT EXISTS vector_indexes (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	cloud      TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ensurePgSchema creates the pgvector extension, the index registry, the
// entry table for one index and its HNSW cosine index.
func ensurePgSchema(ctx context.Context, tx *sql.Tx, table string, dim int) error {
	quoted := pq.QuoteIdentifier(table)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		pgRegistry,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			text      TEXT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, quoted, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pq.QuoteIdentifier(table+"_embedding_idx"), quoted),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("store: schema: %w", err)
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vector_indexes (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL,
	cloud     TEXT NOT NULL DEFAULT '',
	region    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS vector_entries (
	index_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB NOT NULL,
	PRIMARY KEY (index_name, id)
);`

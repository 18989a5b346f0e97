package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/katakuxiko/medchat/internal/model"
)

// PgStore keeps each index in its own pgvector table and records index
// settings in the vector_indexes registry.
type PgStore struct {
	db *sql.DB

	mu    sync.RWMutex
	table string
	dim   int
}

func NewPgStore(dsn string) (*PgStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PgStore{db: db}, nil
}

// NewPgStoreDB wraps an existing connection pool.
func NewPgStoreDB(db *sql.DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) EnsureIndex(ctx context.Context, spec model.IndexSpec) error {
	if err := validateSpec(spec); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	// serialise concurrent creators of the same index
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, spec.Name); err != nil {
		return fmt.Errorf("store: lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, pgRegistry); err != nil {
		return fmt.Errorf("store: registry: %w", err)
	}

	var existing model.IndexSpec
	err = tx.QueryRowContext(ctx,
		`SELECT name, dimension, metric, cloud, region FROM vector_indexes WHERE name = $1`, spec.Name,
	).Scan(&existing.Name, &existing.Dimension, &existing.Metric, &existing.Cloud, &existing.Region)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vector_indexes (name, dimension, metric, cloud, region) VALUES ($1, $2, $3, $4, $5)`,
			spec.Name, spec.Dimension, spec.Metric, spec.Cloud, spec.Region,
		); err != nil {
			return fmt.Errorf("store: register %s: %w", spec.Name, err)
		}
	case err != nil:
		return fmt.Errorf("store: lookup %s: %w", spec.Name, err)
	default:
		if err := checkExisting(existing, spec); err != nil {
			return err
		}
	}

	if err := ensurePgSchema(ctx, tx, spec.Name, spec.Dimension); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	s.mu.Lock()
	s.table, s.dim = spec.Name, spec.Dimension
	s.mu.Unlock()
	return nil
}

func (s *PgStore) selected() (string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == "" {
		return "", 0, ErrNoIndex
	}
	return s.table, s.dim, nil
}

func (s *PgStore) Upsert(ctx context.Context, entries []model.Entry) error {
	table, dim, err := s.selected()
	if err != nil {
		return err
	}
	if err := checkEntries(entries, dim); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, text, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE
		SET text = EXCLUDED.text, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`, pq.QuoteIdentifier(table)))
	if err != nil {
		return fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(metadataOrEmpty(e.Metadata))
		if err != nil {
			return fmt.Errorf("store: metadata of %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Text, string(meta), pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("store: upsert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PgStore) Query(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	table, dim, err := s.selected()
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrIndexMismatch, len(vector), dim)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, text, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pq.QuoteIdentifier(table)), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var res []model.Match
	for rows.Next() {
		var (
			m    model.Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &meta, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("store: metadata of %s: %w", m.ID, err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *PgStore) Count(ctx context.Context) (int, error) {
	table, _, err := s.selected()
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, pq.QuoteIdentifier(table))).Scan(&n)
	return n, err
}

func (s *PgStore) Indexes(ctx context.Context) ([]model.IndexSpec, error) {
	if _, err := s.db.ExecContext(ctx, pgRegistry); err != nil {
		return nil, fmt.Errorf("store: registry: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, dimension, metric, cloud, region FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.IndexSpec
	for rows.Next() {
		var sp model.IndexSpec
		if err := rows.Scan(&sp.Name, &sp.Dimension, &sp.Metric, &sp.Cloud, &sp.Region); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Analyze refreshes planner statistics after a bulk load.
func (s *PgStore) Analyze(ctx context.Context) error {
	table, _, err := s.selected()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `ANALYZE `+pq.QuoteIdentifier(table))
	return err
}

func (s *PgStore) Close() error { return s.db.Close() }

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/katakuxiko/medchat/internal/model"
)

// SQLiteStore keeps vectors as float32 BLOBs in a single SQLite file and
// ranks them by brute-force cosine similarity. It suits small corpora,
// local runs and tests; use ":memory:" for a throwaway index.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.RWMutex
	name string
	dim  int
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureIndex(ctx context.Context, spec model.IndexSpec) error {
	if err := validateSpec(spec); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing model.IndexSpec
	err = tx.QueryRowContext(ctx,
		`SELECT name, dimension, metric, cloud, region FROM vector_indexes WHERE name = ?`, spec.Name,
	).Scan(&existing.Name, &existing.Dimension, &existing.Metric, &existing.Cloud, &existing.Region)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vector_indexes (name, dimension, metric, cloud, region) VALUES (?, ?, ?, ?, ?)`,
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
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	s.name, s.dim = spec.Name, spec.Dimension
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) selected() (string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.name == "" {
		return "", 0, ErrNoIndex
	}
	return s.name, s.dim, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, entries []model.Entry) error {
	name, dim, err := s.selected()
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
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_entries (index_name, id, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (index_name, id) DO UPDATE
		SET text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(metadataOrEmpty(e.Metadata))
		if err != nil {
			return fmt.Errorf("store: metadata of %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, e.ID, e.Text, string(meta), EncodeVector(e.Vector)); err != nil {
			return fmt.Errorf("store: upsert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	name, dim, err := s.selected()
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrIndexMismatch, len(vector), dim)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding FROM vector_entries WHERE index_name = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var all []model.Match
	for rows.Next() {
		var (
			m    model.Match
			meta string
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &meta, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: entry %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("store: metadata of %s: %w", m.ID, err)
		}
		m.Score = Cosine(vector, vec)
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	name, _, err := s.selected()
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM vector_entries WHERE index_name = ?`, name).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Indexes(ctx context.Context) ([]model.IndexSpec, error) {
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

func (s *SQLiteStore) Close() error { return s.db.Close() }

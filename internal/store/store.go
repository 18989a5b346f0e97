// Package store persists embedded chunks in a named vector index and ranks
// them by cosine similarity.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/katakuxiko/medchat/internal/config"
	"github.com/katakuxiko/medchat/internal/model"
)

var (
	// ErrIndexMismatch is returned when an index already exists with another
	// dimension or metric, or a vector does not fit the index.
	ErrIndexMismatch = errors.New("store: index mismatch")
	// ErrNoIndex is returned by data operations called before EnsureIndex.
	ErrNoIndex = errors.New("store: index not selected")
)

// VectorIndex is a named collection of (id, vector, text, metadata) entries.
// EnsureIndex must be called first; it selects the index the other methods
// operate on.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, spec model.IndexSpec) error
	Upsert(ctx context.Context, entries []model.Entry) error
	Query(ctx context.Context, vector []float32, k int) ([]model.Match, error)
	Count(ctx context.Context) (int, error)
	Indexes(ctx context.Context) ([]model.IndexSpec, error)
	Close() error
}

// Open connects to the store named by cfg.Driver ("postgres" or "sqlite").
func Open(cfg config.IndexConfig) (VectorIndex, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPgStore(cfg.DSN)
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

var indexName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,44}$`)

// validateSpec applies the naming rules of hosted indexes: lower-case
// alphanumerics and hyphens.
func validateSpec(spec model.IndexSpec) error {
	if !indexName.MatchString(spec.Name) {
		return fmt.Errorf("store: invalid index name %q", spec.Name)
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("store: invalid dimension %d", spec.Dimension)
	}
	if spec.Metric != model.MetricCosine {
		return fmt.Errorf("store: unsupported metric %q", spec.Metric)
	}
	return nil
}

func checkExisting(existing, want model.IndexSpec) error {
	if existing.Dimension != want.Dimension || existing.Metric != want.Metric {
		return fmt.Errorf("%w: %s exists with dimension %d metric %s, want %d %s",
			ErrIndexMismatch, want.Name, existing.Dimension, existing.Metric, want.Dimension, want.Metric)
	}
	return nil
}

func checkEntries(entries []model.Entry, dim int) error {
	for _, e := range entries {
		if e.ID == "" {
			return errors.New("store: entry without id")
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d dims, index has %d", ErrIndexMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return nil
}

// EncodeVector packs v as little-endian IEEE 754 float32 values.
func EncodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("store: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Package embedding turns text into fixed-size vectors.
//
// The same Embedder must be used to build an index and to query it, so both
// cmd/indexer and cmd/server construct theirs from the shared embedder config.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/katakuxiko/medchat/internal/config"
)

// ErrDimensionMismatch is returned when a vector does not have the
// configured number of components.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// New builds the embedder selected by cfg.Type ("openai" or "hash").
func New(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAI(cfg), nil
	case "hash":
		return NewHash(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown embedder type %q", cfg.Type)
	}
}

// EmbedOne is a convenience for single-text queries.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: got %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

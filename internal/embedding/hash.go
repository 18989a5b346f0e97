package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a feature-hashing embedder: every lower-cased word token adds
// +/-1 to one bucket and the result is L2-normalised. It needs no network
// and is deterministic, which makes it useful offline and in tests. Texts
// sharing words end up with a positive cosine similarity.
type Hash struct {
	dimension int
}

func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = 384
	}
	return &Hash{dimension: dimension}
}

func (h *Hash) Dimension() int { return h.dimension }
func (h *Hash) Model() string  { return "hash" }

func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		sum := f.Sum64()
		bucket := sum % uint64(h.dimension)
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

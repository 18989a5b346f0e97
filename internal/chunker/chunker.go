// Package chunker splits page text into bounded, overlapping chunks.
// Sizes and overlaps are counted in runes.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/katakuxiko/medchat/internal/model"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 20
)

// ErrInvalidWindow reports a size/overlap pair that cannot make progress.
var ErrInvalidWindow = errors.New("chunker: invalid window")

// TextSplitter splits one text into ordered pieces.
type TextSplitter interface {
	SplitText(text string) []string
}

// Chunker applies a TextSplitter to every document, keeping source metadata.
type Chunker struct {
	splitter TextSplitter
}

// New returns a chunker for the named strategy ("window" or "recursive").
func New(strategy string, size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	var s TextSplitter
	switch strategy {
	case "window", "":
		s = &Window{Size: size, Overlap: overlap}
	case "recursive":
		s = NewRecursive(size, overlap)
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", strategy)
	}
	return &Chunker{splitter: s}, nil
}

// Split chunks documents in order. Chunk indexes restart at zero per document.
func (c *Chunker) Split(docs []model.Document) []model.Chunk {
	var out []model.Chunk
	for _, d := range docs {
		for i, text := range c.splitter.SplitText(d.Content) {
			out = append(out, model.Chunk{
				Source: d.Source,
				Page:   d.Page,
				Index:  i,
				Text:   text,
			})
		}
	}
	return out
}

// Window cuts fixed windows of Size runes that advance by Size-Overlap, so
// neighbours share exactly Overlap runes. The tail is always emitted.
type Window struct {
	Size    int
	Overlap int
}

func (w *Window) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	stride := w.Size - w.Overlap
	if stride <= 0 {
		stride = w.Size
	}
	var out []string
	for start := 0; start < n; start += stride {
		end := start + w.Size
		if end > n {
			end = n
		}
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
		if end == n {
			break
		}
	}
	return out
}

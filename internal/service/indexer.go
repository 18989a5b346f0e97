package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/katakuxiko/medchat/internal/chunker"
	"github.com/katakuxiko/medchat/internal/embedding"
	"github.com/katakuxiko/medchat/internal/model"
	"github.com/katakuxiko/medchat/internal/pdf"
	"github.com/katakuxiko/medchat/internal/store"
)

// entryNamespace scopes deterministic entry ids.
var entryNamespace = uuid.MustParse("6f1c1f7e-3b9a-4f0e-9a51-0d5c2b7f4e21")

// IndexStats summarises one indexing run.
type IndexStats struct {
	Documents int
	Chunks    int
	Upserted  int
	Elapsed   time.Duration
}

type IndexerOptions struct {
	Spec      model.IndexSpec
	BatchSize int
	// Dedup derives entry ids from content so re-indexing the same corpus
	// replaces entries instead of adding copies.
	Dedup bool
}

// Indexer runs the offline pipeline: load, split, embed, upsert.
type Indexer struct {
	loader   *pdf.Loader
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	index    store.VectorIndex
	opts     IndexerOptions
}

func NewIndexer(l *pdf.Loader, c *chunker.Chunker, e embedding.Embedder, idx store.VectorIndex, opts IndexerOptions) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Indexer{loader: l, chunker: c, embedder: e, index: idx, opts: opts}
}

// Run indexes every PDF in dir.
func (ix *Indexer) Run(ctx context.Context, dir string) (IndexStats, error) {
	start := time.Now()
	docs, err := ix.loader.LoadDir(ctx, dir)
	if err != nil {
		return IndexStats{}, err
	}
	stats, err := ix.indexDocs(ctx, docs)
	stats.Elapsed = time.Since(start)
	return stats, err
}

// RunFile indexes one uploaded PDF. source replaces path as the chunks'
// source and dedup key; empty keeps path.
func (ix *Indexer) RunFile(ctx context.Context, path, source string) (IndexStats, error) {
	start := time.Now()
	docs, err := ix.loader.LoadFile(path)
	if err != nil {
		return IndexStats{}, err
	}
	if source != "" {
		for i := range docs {
			docs[i].Source = source
		}
	}
	stats, err := ix.indexDocs(ctx, docs)
	stats.Elapsed = time.Since(start)
	return stats, err
}

func (ix *Indexer) indexDocs(ctx context.Context, docs []model.Document) (IndexStats, error) {
	stats := IndexStats{Documents: len(docs)}
	chunks := ix.chunker.Split(docs)
	stats.Chunks = len(chunks)
	log.Infow("split documents", "pages", len(docs), "chunks", len(chunks))

	if ix.embedder.Dimension() != ix.opts.Spec.Dimension {
		return stats, fmt.Errorf("%w: embedder %s has %d dims, index %s has %d",
			store.ErrIndexMismatch, ix.embedder.Model(), ix.embedder.Dimension(),
			ix.opts.Spec.Name, ix.opts.Spec.Dimension)
	}
	if err := ix.index.EnsureIndex(ctx, ix.opts.Spec); err != nil {
		return stats, err
	}

	for start := 0; start < len(chunks); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return stats, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
		}

		entries := make([]model.Entry, len(batch))
		for i, c := range batch {
			entries[i] = model.Entry{
				ID:       ix.entryID(c),
				Vector:   vecs[i],
				Text:     c.Text,
				Metadata: c.Metadata(),
			}
		}
		if err := ix.index.Upsert(ctx, entries); err != nil {
			return stats, fmt.Errorf("upsert chunks %d-%d: %w", start, end, err)
		}
		stats.Upserted += len(entries)
		log.Debugw("upserted batch", "done", stats.Upserted, "total", len(chunks))
	}
	return stats, nil
}

func (ix *Indexer) entryID(c model.Chunk) string {
	if !ix.opts.Dedup {
		return uuid.NewString()
	}
	key := c.Source + "\x00" + strconv.Itoa(c.Page) + "\x00" + strconv.Itoa(c.Index) + "\x00" + c.Text
	return uuid.NewSHA1(entryNamespace, []byte(key)).String()
}

// Command indexer loads the PDFs of a directory into the vector index.
// It is meant to be run once per corpus, before starting the server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"

	"github.com/katakuxiko/medchat/internal/chunker"
	"github.com/katakuxiko/medchat/internal/config"
	"github.com/katakuxiko/medchat/internal/embedding"
	"github.com/katakuxiko/medchat/internal/pdf"
	"github.com/katakuxiko/medchat/internal/service"
	"github.com/katakuxiko/medchat/internal/store"
	"github.com/katakuxiko/medchat/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("MEDCHAT_CONFIG"), "path to YAML config file")
	dataDir := flag.String("data", "", "directory with PDF files (overrides loader.data_dir)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(util.ParseLevel(cfg.Log.Level))
	if *dataDir != "" {
		cfg.Loader.DataDir = *dataDir
	}
	if err := cfg.ValidateIndexer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	loader, err := pdf.NewLoader(pdf.Options{
		Pattern:     cfg.Loader.Pattern,
		Extractor:   cfg.Loader.Extractor,
		SkipInvalid: cfg.Loader.SkipInvalid,
	})
	if err != nil {
		log.Fatalf("loader: %v", err)
	}
	ch, err := chunker.New(cfg.Chunker.Strategy, cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatalf("chunker: %v", err)
	}
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}
	idx, err := store.Open(cfg.Index)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}
	defer idx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ix := service.NewIndexer(loader, ch, emb, idx, service.IndexerOptions{
		Spec:      cfg.Index.Spec(),
		BatchSize: cfg.Index.BatchSize,
		Dedup:     cfg.Index.Dedup,
	})
	log.Infow("indexing", "dir", cfg.Loader.DataDir, "index", cfg.Index.Name, "embedder", emb.Model())
	stats, err := ix.Run(ctx, cfg.Loader.DataDir)
	if err != nil {
		log.Fatalf("index %s: %v", cfg.Loader.DataDir, err)
	}
	if pg, ok := idx.(*store.PgStore); ok {
		if err := pg.Analyze(ctx); err != nil {
			log.Warnw("analyze failed", "error", err)
		}
	}

	total, err := idx.Count(ctx)
	if err != nil {
		log.Warnw("count failed", "error", err)
	}
	log.Infow("done", "pages", stats.Documents, "chunks", stats.Chunks,
		"upserted", stats.Upserted, "entries", total, "elapsed", stats.Elapsed)
}

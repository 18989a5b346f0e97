package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"

	"github.com/katakuxiko/medchat/internal/api"
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
	flag.Parse()

	// config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(util.ParseLevel(cfg.Log.Level))
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// store
	idx, err := store.Open(cfg.Index)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = idx.EnsureIndex(ctx, cfg.Index.Spec())
	cancel()
	if err != nil {
		log.Fatalf("vector index %s: %v", cfg.Index.Name, err)
	}

	// services
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}
	llm := service.NewLLMClient(cfg.LLM)
	chat := service.NewChatService(service.NewRetriever(emb, idx, cfg.Retrieval.TopK), llm)

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
	indexer := service.NewIndexer(loader, ch, emb, idx, service.IndexerOptions{
		Spec:      cfg.Index.Spec(),
		BatchSize: cfg.Index.BatchSize,
		Dedup:     cfg.Index.Dedup,
	})

	// api
	app := api.NewApp(api.NewHandler(chat, indexer, cfg.Server.UploadDir), api.Options{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AccessLog:    true,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorw("shutdown", "error", err)
		}
	}()

	log.Infow("server started", "addr", cfg.Server.Addr, "index", cfg.Index.Name,
		"embedder", emb.Model(), "llm", llm.Model())
	if err := app.Listen(cfg.Server.Addr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

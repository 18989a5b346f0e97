package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/medchat/internal/chunker"
	"github.com/katakuxiko/medchat/internal/config"
	"github.com/katakuxiko/medchat/internal/embedding"
	"github.com/katakuxiko/medchat/internal/model"
	"github.com/katakuxiko/medchat/internal/openaitest"
	"github.com/katakuxiko/medchat/internal/pdf"
	"github.com/katakuxiko/medchat/internal/pdf/pdftest"
	"github.com/katakuxiko/medchat/internal/store"
)

func llmConfig(baseURL string) config.LLMConfig {
	cfg := config.Default().LLM
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	return cfg
}

type pipeline struct {
	indexer *Indexer
	index   store.VectorIndex
	chat    *ChatService
	llm     *openaitest.Server
}

func newPipeline(t *testing.T, dedup bool) *pipeline {
	t.Helper()
	loader, err := pdf.NewLoader(pdf.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := chunker.New("window", chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	emb := embedding.NewHash(384)
	spec := config.Default().Index.Spec()
	ix := NewIndexer(loader, ch, emb, idx, IndexerOptions{Spec: spec, BatchSize: 2, Dedup: dedup})

	srv := openaitest.New(t)
	srv.ReplyFunc = func(req openai.ChatCompletionRequest) string {
		return "Aspirin reduces fever. It lowers body temperature."
	}
	chat := NewChatService(NewRetriever(emb, idx, 3), NewLLMClient(llmConfig(srv.BaseURL())))
	return &pipeline{indexer: ix, index: idx, chat: chat, llm: srv}
}

func sentences(s string) int {
	return strings.Count(s, ".") + strings.Count(s, "!") + strings.Count(s, "?")
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "aspirin.pdf"), "Aspirin reduces fever.")

	p := newPipeline(t, true)
	ctx := context.Background()
	stats, err := p.indexer.Run(ctx, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 || stats.Upserted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	ans, err := p.chat.Ask(ctx, "What reduces fever?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) == 0 || !strings.Contains(ans.Sources[0].Text, "Aspirin") {
		t.Fatalf("top chunk does not mention Aspirin: %+v", ans.Sources)
	}
	if filepath.Base(ans.Sources[0].Source()) != "aspirin.pdf" {
		t.Fatalf("source metadata = %q", ans.Sources[0].Source())
	}
	if ans.Text == "" || sentences(ans.Text) > 3 {
		t.Fatalf("answer %q should be non-empty and at most three sentences", ans.Text)
	}

	chats := p.llm.Chats()
	if len(chats) != 1 {
		t.Fatalf("expected one chat request, got %d", len(chats))
	}
	req := chats[0]
	if req.Model != "gemini-2.5-flash" || req.Temperature != 0.3 {
		t.Fatalf("model/temperature = %s/%v", req.Model, req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "Context: Aspirin reduces fever.") {
		t.Fatalf("context not stuffed into system message: %q", req.Messages[0].Content)
	}
	if req.Messages[1].Content != "What reduces fever?" {
		t.Fatalf("user message = %q", req.Messages[1].Content)
	}
}

func TestIndexer_Dedup(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "a.pdf"), "Aspirin reduces fever.", "Ibuprofen treats pain.")
	ctx := context.Background()

	for _, tc := range []struct {
		dedup bool
		want  int
	}{{true, 2}, {false, 4}} {
		p := newPipeline(t, tc.dedup)
		for i := 0; i < 2; i++ {
			if _, err := p.indexer.Run(ctx, dir); err != nil {
				t.Fatal(err)
			}
		}
		n, err := p.index.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != tc.want {
			t.Fatalf("dedup=%v: %d entries after two runs, want %d", tc.dedup, n, tc.want)
		}
	}
}

func TestIndexer_RunFileSameUploadTwice(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "20250101_100000__aspirin.pdf")
	second := filepath.Join(dir, "20250101_100500__aspirin.pdf")
	pdftest.Write(t, first, "Aspirin reduces fever.")
	pdftest.Write(t, second, "Aspirin reduces fever.")

	p := newPipeline(t, true)
	ctx := context.Background()
	source := filepath.Join("uploads", "aspirin.pdf")
	for _, path := range []string{first, second} {
		if _, err := p.indexer.RunFile(ctx, path, source); err != nil {
			t.Fatalf("RunFile %s: %v", path, err)
		}
	}
	if n, err := p.index.Count(ctx); err != nil || n != 1 {
		t.Fatalf("entries after two uploads = %d (%v), want 1", n, err)
	}

	ans, err := p.chat.Ask(ctx, "What reduces fever?")
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Source() != source {
		t.Fatalf("sources = %+v, want one match from %s", ans.Sources, source)
	}
}

func TestIndexer_MissingDir(t *testing.T) {
	p := newPipeline(t, true)
	if _, err := p.indexer.Run(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing data dir")
	}
}

func TestIndexer_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "a.pdf"), "Aspirin reduces fever.")
	loader, _ := pdf.NewLoader(pdf.Options{})
	ch, _ := chunker.New("window", 500, 20)
	idx, _ := store.NewSQLiteStore(":memory:")
	defer idx.Close()

	ix := NewIndexer(loader, ch, embedding.NewHash(768), idx, IndexerOptions{Spec: config.Default().Index.Spec()})
	if _, err := ix.Run(context.Background(), dir); !errors.Is(err, store.ErrIndexMismatch) {
		t.Fatalf("err = %v, want ErrIndexMismatch", err)
	}
}

func TestAsk_EmptyQuery(t *testing.T) {
	p := newPipeline(t, true)
	if _, err := p.chat.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestAsk_EmptyIndex(t *testing.T) {
	p := newPipeline(t, true)
	if err := p.index.EnsureIndex(context.Background(), config.Default().Index.Spec()); err != nil {
		t.Fatal(err)
	}
	ans, err := p.chat.Ask(context.Background(), "What reduces fever?")
	if err != nil {
		t.Fatalf("Ask on empty index: %v", err)
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(ans.Sources))
	}
	if sys := p.llm.Chats()[0].Messages[0].Content; !strings.HasSuffix(sys, "Context: ") {
		t.Fatalf("system prompt should end with an empty context: %q", sys)
	}
}

func TestLLMClient_EmptyCompletion(t *testing.T) {
	srv := openaitest.New(t)
	c := NewLLMClient(llmConfig(srv.BaseURL()))
	if _, err := c.Generate(context.Background(), Prompt{System: "s", User: "u"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}

func TestLLMClient_ServerError(t *testing.T) {
	srv := openaitest.New(t)
	srv.Status = http.StatusTooManyRequests
	c := NewLLMClient(llmConfig(srv.BaseURL()))
	_, err := c.Generate(context.Background(), Prompt{System: "s", User: "u"})
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want APIError 429", err)
	}
	if len(srv.Chats()) != 0 {
		t.Fatal("failed request should not be recorded")
	}
}

func TestLLMClient_Timeout(t *testing.T) {
	srv := openaitest.New(t)
	srv.ReplyFunc = func(openai.ChatCompletionRequest) string {
		time.Sleep(200 * time.Millisecond)
		return "late"
	}
	cfg := llmConfig(srv.BaseURL())
	cfg.Timeout = 20 * time.Millisecond
	if _, err := NewLLMClient(cfg).Generate(context.Background(), Prompt{User: "u"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestAssemble(t *testing.T) {
	matches := []model.Match{{Text: "first"}, {Text: "second"}}
	p := Assemble("What reduces fever?", matches)
	if !strings.HasPrefix(p.System, "You are a Medical assistant") {
		t.Fatalf("system = %q", p.System)
	}
	if !strings.HasSuffix(p.System, "Context: first\n\nsecond") {
		t.Fatalf("context not joined in order: %q", p.System)
	}
	if !strings.Contains(p.System, "three sentences maximum") || !strings.Contains(p.System, "say that you don't know") {
		t.Fatalf("instructions missing: %q", p.System)
	}
	if p.User != "What reduces fever?" {
		t.Fatalf("user = %q", p.User)
	}
	if s := p.String(); !strings.HasSuffix(s, "Question: What reduces fever?") {
		t.Fatalf("String() = %q", s)
	}
}

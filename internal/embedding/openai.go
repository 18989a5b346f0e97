package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/medchat/internal/config"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint, such as a
// text-embeddings-inference or LM Studio server hosting all-MiniLM-L6-v2.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

func NewOpenAI(cfg config.EmbedderConfig) *OpenAI {
	key := cfg.APIKey
	if key == "" {
		key = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(key)
	oaiCfg.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		oaiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(oaiCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: batch,
	}
}

func (e *OpenAI) Dimension() int { return e.dimension }
func (e *OpenAI) Model() string  { return e.model }

func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		if e.dimension > 0 && len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: model %s returned %d, want %d",
				ErrDimensionMismatch, e.model, len(d.Embedding), e.dimension)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

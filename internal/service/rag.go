package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/medchat/internal/embedding"
	"github.com/katakuxiko/medchat/internal/model"
	"github.com/katakuxiko/medchat/internal/store"
	"github.com/katakuxiko/medchat/internal/util"
)

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("empty query")

// Retriever ищет k ближайших записей
type Retriever struct {
	embedder embedding.Embedder
	index    store.VectorIndex
	k        int
}

func NewRetriever(e embedding.Embedder, idx store.VectorIndex, k int) *Retriever {
	if k <= 0 {
		k = 3
	}
	return &Retriever{embedder: e, index: idx, k: k}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]model.Match, error) {
	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding error: %w", err)
	}
	matches, err := r.index.Query(ctx, vec, r.k)
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return matches, nil
}

// ChatService — RAG: поиск + LLM, без истории
type ChatService struct {
	retriever *Retriever
	llm       Generator
}

func NewChatService(r *Retriever, llm Generator) *ChatService {
	return &ChatService{retriever: r, llm: llm}
}

func (s *ChatService) Ask(ctx context.Context, query string) (model.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Answer{}, ErrEmptyQuery
	}
	log.Infow("question", "query", util.Preview(query, 200))

	matches, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return model.Answer{}, err
	}
	answer, err := s.llm.Generate(ctx, Assemble(query, matches))
	if err != nil {
		return model.Answer{}, fmt.Errorf("llm error: %w", err)
	}

	log.Infow("answer", "answer", util.Preview(answer, 200), "sources", len(matches))
	return model.Answer{Query: query, Text: answer, Sources: matches}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/medchat/internal/config"
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// LLMClient — клиент для OpenAI совместимых моделей (Gemini: /v1beta/openai/)
type LLMClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	oaiCfg.BaseURL = cfg.BaseURL
	return &LLMClient{
		client:      openai.NewClientWithConfig(oaiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

// Generate отправляет промпт без повторов
func (l *LLMClient) Generate(ctx context.Context, p Prompt) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: l.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (l *LLMClient) Model() string { return l.model }

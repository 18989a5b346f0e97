// Package openaitest serves a fake OpenAI-compatible API for tests.
package openaitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// Server answers /v1/embeddings and /v1/chat/completions.
type Server struct {
	*httptest.Server

	// EmbedFunc maps one input text to its vector. Defaults to Vector(Dim).
	EmbedFunc func(text string) []float32
	// ReplyFunc produces the assistant message. Nil means an empty choice list.
	ReplyFunc func(req openai.ChatCompletionRequest) string
	// Status, when set, is returned for every request with an error body.
	Status int
	Dim    int

	mu       sync.Mutex
	chats    []openai.ChatCompletionRequest
	embedded int
}

// New starts a server that closes when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{Dim: 384}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", s.embeddings)
	mux.HandleFunc("/v1/chat/completions", s.chat)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value for the client's BaseURL setting.
func (s *Server) BaseURL() string { return s.URL + "/v1" }

// Chats returns the chat requests received so far.
func (s *Server) Chats() []openai.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), s.chats...)
}

// Embedded returns how many texts were embedded.
func (s *Server) Embedded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedded
}

// Vector returns a deterministic vector of dim components derived from text.
func Vector(dim int, text string) []float32 {
	v := make([]float32, dim)
	for i, r := range text {
		v[(i+int(r))%dim] += 1
	}
	return v
}

func (s *Server) failed(w http.ResponseWriter) bool {
	if s.Status == 0 {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.Status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "fake failure", "type": "server_error"},
	})
	return true
}

func (s *Server) embeddings(w http.ResponseWriter, r *http.Request) {
	if s.failed(w) {
		return
	}
	var req struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := openai.EmbeddingResponse{Object: "list", Model: openai.EmbeddingModel(req.Model)}
	for i, text := range req.Input {
		var vec []float32
		if s.EmbedFunc != nil {
			vec = s.EmbedFunc(text)
		} else {
			vec = Vector(s.Dim, text)
		}
		resp.Data = append(resp.Data, openai.Embedding{Object: "embedding", Embedding: vec, Index: i})
	}
	s.mu.Lock()
	s.embedded += len(req.Input)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	if s.failed(w) {
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.chats = append(s.chats, req)
	s.mu.Unlock()

	resp := openai.ChatCompletionResponse{ID: "chatcmpl-test", Object: "chat.completion", Model: req.Model}
	if s.ReplyFunc != nil {
		resp.Choices = []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: s.ReplyFunc(req),
			},
			FinishReason: openai.FinishReasonStop,
		}}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

package service

import (
	"strings"

	"github.com/katakuxiko/medchat/internal/model"
)

const systemTemplate = "You are a Medical assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, say that you don't know. " +
	"Use three sentences maximum and keep the answer concise.\n\n" +
	"Context: "

// Prompt is a chat prompt: instructions plus context, and the user question.
type Prompt struct {
	System string
	User   string
}

// String renders the prompt as one block of text.
func (p Prompt) String() string {
	return p.System + "\n\nQuestion: " + p.User
}

// Assemble stuffs the retrieved texts, in retrieval order, into the system
// message. Context is never truncated.
func Assemble(query string, matches []model.Match) Prompt {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return Prompt{
		System: systemTemplate + strings.Join(texts, "\n\n"),
		User:   query,
	}
}

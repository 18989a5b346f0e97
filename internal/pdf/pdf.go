// Package pdf loads PDF files from a directory into per-page documents.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/medchat/internal/model"
)

type Options struct {
	Pattern     string
	Extractor   string
	SkipInvalid bool
}

type Loader struct {
	pattern     string
	extractor   Extractor
	skipInvalid bool
}

func NewLoader(opts Options) (*Loader, error) {
	ex, err := NewExtractor(opts.Extractor)
	if err != nil {
		return nil, err
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*.pdf"
	}
	if _, err := filepath.Match(pattern, "x.pdf"); err != nil {
		return nil, fmt.Errorf("pdf: bad pattern %q: %w", pattern, err)
	}
	return &Loader{pattern: pattern, extractor: ex, skipInvalid: opts.SkipInvalid}, nil
}

// LoadDir returns one Document per non-empty page of every file in dir that
// matches the loader's pattern. Subdirectories are not searched.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]model.Document, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("pdf: open data dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("pdf: %s is not a directory", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, l.pattern))
	if err != nil {
		return nil, err
	}

	var docs []model.Document
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := l.LoadFile(path)
		if err != nil {
			if l.skipInvalid {
				log.Warnw("skipping unreadable pdf", "path", path, "error", err)
				continue
			}
			return nil, err
		}
		docs = append(docs, pages...)
	}
	return docs, nil
}

// LoadFile extracts the pages of a single PDF.
func (l *Loader) LoadFile(path string) ([]model.Document, error) {
	pages, err := l.extractor.Pages(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: extract %s: %w", path, err)
	}
	docs := make([]model.Document, 0, len(pages))
	for i, text := range pages {
		text = Sanitize(text)
		if text == "" {
			continue
		}
		docs = append(docs, model.Document{Source: path, Page: i, Content: text})
	}
	return docs, nil
}

// Sanitize drops NUL bytes, normalises line endings and tabs, squeezes
// repeated spaces and keeps at most one blank line between paragraphs.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

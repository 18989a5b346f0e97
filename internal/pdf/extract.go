package pdf

import (
	"fmt"
	"os"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	rscpdf "rsc.io/pdf"
)

// Extractor returns the raw text of every page of a PDF file, in page order.
// Pages without a content stream yield an empty string.
type Extractor interface {
	Pages(path string) ([]string, error)
}

// NewExtractor returns the extractor registered under name.
func NewExtractor(name string) (Extractor, error) {
	switch name {
	case "rsc", "":
		return RSCExtractor{}, nil
	case "ledongthuc":
		return LedongthucExtractor{}, nil
	default:
		return nil, fmt.Errorf("pdf: unknown extractor %q", name)
	}
}

// RSCExtractor reads glyph runs with rsc.io/pdf and rebuilds lines from
// their positions. rsc.io/pdf drops space glyphs, so word breaks come from
// the gaps between glyphs; fonts without /Widths leave no gaps and are
// handed to LedongthucExtractor.
type RSCExtractor struct{}

func (RSCExtractor) Pages(path string) (pages []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// rsc.io/pdf panics on many malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf: parse %s: %v", path, r)
		}
	}()

	r, err := rscpdf.NewReader(f, st.Size())
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, ok := joinGlyphs(p.Content().Text)
		if !ok {
			return LedongthucExtractor{}.Pages(path)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// wordGap is the smallest gap, as a share of the font size, read as a space.
// A 250/1000 em space must still count.
const wordGap = 0.15

// joinGlyphs reports false when a glyph has no width, since positions then
// carry no word breaks.
func joinGlyphs(texts []rscpdf.Text) (string, bool) {
	var sb strings.Builder
	for i, t := range texts {
		if t.W == 0 && strings.TrimSpace(t.S) != "" {
			return "", false
		}
		if i > 0 {
			prev := texts[i-1]
			switch {
			case t.Y != prev.Y:
				sb.WriteString("\n")
			case t.X-(prev.X+prev.W) >= t.FontSize*wordGap:
				sb.WriteString(" ")
			}
		}
		sb.WriteString(t.S)
	}
	return sb.String(), true
}

// LedongthucExtractor uses github.com/ledongthuc/pdf's plain-text walker,
// which keeps the text object order of the content stream.
type LedongthucExtractor struct{}

func (LedongthucExtractor) Pages(path string) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("pdf: parse %s: %v", path, rec)
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fonts := make(map[string]*lpdf.Font)
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("pdf: page %d of %s: %w", i, path, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

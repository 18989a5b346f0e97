package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/katakuxiko/medchat/internal/model"
)

func longText(n int) string {
	var b strings.Builder
	words := []string{"fever", "aspirin", "dose", "patient", "héart", "pain", "rest"}
	for i := 0; b.Len() < n; i++ {
		b.WriteString(words[i%len(words)])
		if i%13 == 12 {
			b.WriteString(".\n\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestWindow_SizeAndOverlap(t *testing.T) {
	text := longText(2300)
	w := &Window{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
	chunks := w.SplitText(text)
	if len(chunks) < 4 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultChunkSize {
			t.Fatalf("chunk %d has %d runes, want <= %d", i, n, DefaultChunkSize)
		}
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1])
		cur := []rune(c)
		tail := string(prev[len(prev)-DefaultChunkOverlap:])
		head := string(cur[:DefaultChunkOverlap])
		if tail != head {
			t.Fatalf("chunks %d/%d do not share %d runes: %q vs %q", i-1, i, DefaultChunkOverlap, tail, head)
		}
	}
}

func TestWindow_KeepsTrailingContent(t *testing.T) {
	text := longText(1000) + "TAIL"
	w := &Window{Size: 500, Overlap: 20}
	chunks := w.SplitText(text)
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last, "TAIL") {
		t.Fatalf("last chunk lost trailing content: %q", last)
	}

	// Reassembling by dropping the overlap gives back the original text.
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[20:]))
	}
	if b.String() != text {
		t.Fatalf("reassembled text differs from input")
	}
}

func TestWindow_ShortAndEmpty(t *testing.T) {
	w := &Window{Size: 500, Overlap: 20}
	if got := w.SplitText("Aspirin reduces fever."); len(got) != 1 || got[0] != "Aspirin reduces fever." {
		t.Fatalf("short text chunks = %q", got)
	}
	if got := w.SplitText("   \n  "); len(got) != 0 {
		t.Fatalf("whitespace text should give no chunks, got %q", got)
	}
}

func TestRecursive_RespectsSize(t *testing.T) {
	text := longText(3000)
	r := NewRecursive(500, 20)
	chunks := r.SplitText(text)
	if len(chunks) < 6 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 500 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
	}
	// order is preserved: first words of the text start the first chunk
	if !strings.HasPrefix(chunks[0], "fever aspirin") {
		t.Fatalf("first chunk does not start the text: %q", chunks[0][:20])
	}
}

func TestRecursive_OverlapsOnWords(t *testing.T) {
	text := strings.Join(strings.Fields(longText(3000)), " ")
	chunks := NewRecursive(500, 20).SplitText(text)
	if len(chunks) < 6 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], []rune(chunks[i])
		shared := 0
		for k := min(20, len(cur)); k > 0; k-- {
			if strings.HasSuffix(prev, string(cur[:k])) && (k == len(cur) || cur[k] == ' ') {
				shared = k
				break
			}
		}
		if shared == 0 {
			t.Fatalf("chunk %d does not start with whole words from the end of chunk %d: %q / %q",
				i, i-1, prev[len(prev)-30:], string(cur[:30]))
		}
	}
}

func TestRecursive_SplitsUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 1234)
	chunks := NewRecursive(500, 20).SplitText(text)
	total := 0
	for _, c := range chunks {
		if len(c) > 500 {
			t.Fatalf("chunk too long: %d", len(c))
		}
		total += len(c)
	}
	if total < 1234 {
		t.Fatalf("characters lost: %d < 1234", total)
	}
}

func TestChunker_CarriesSource(t *testing.T) {
	c, err := New("window", 500, 20)
	if err != nil {
		t.Fatal(err)
	}
	docs := []model.Document{
		{Source: "data/a.pdf", Page: 0, Content: longText(700)},
		{Source: "data/b.pdf", Page: 3, Content: "Aspirin reduces fever."},
	}
	chunks := c.Split(docs)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Source != "data/a.pdf" || chunks[1].Index != 1 {
		t.Fatalf("unexpected first document chunks: %+v %+v", chunks[0], chunks[1])
	}
	if chunks[2].Source != "data/b.pdf" || chunks[2].Page != 3 || chunks[2].Index != 0 {
		t.Fatalf("unexpected last chunk: %+v", chunks[2])
	}
}

func TestNew_InvalidWindow(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {10, 10}, {10, -1}} {
		if _, err := New("window", tc.size, tc.overlap); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("New(%d,%d) err = %v, want ErrInvalidWindow", tc.size, tc.overlap, err)
		}
	}
	if _, err := New("sentences", 500, 20); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
}

// Package pdftest writes small uncompressed PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
)

// Font is the single font a built PDF uses. Widths are in 1/1000 em and
// apply to the printable ASCII range; a zero GlyphWidth leaves /Widths out,
// as standard-14 fonts often do.
type Font struct {
	BaseFont   string
	GlyphWidth int
	SpaceWidth int
}

// Helvetica approximates the Helvetica metrics.
var Helvetica = Font{BaseFont: "Helvetica", GlyphWidth: 556, SpaceWidth: 278}

// Build returns a PDF with one page per entry of pages, each showing its
// text in Helvetica on a single line.
func Build(pages ...string) []byte {
	return BuildFont(Helvetica, pages...)
}

// BuildFont is Build with a chosen font.
func BuildFont(f Font, pages ...string) []byte {
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		fontDict(f),
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text))
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content)+1, content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// Write stores Build(pages...) at path.
func Write(t testing.TB, path string, pages ...string) {
	t.Helper()
	WriteFont(t, path, Helvetica, pages...)
}

// WriteFont stores BuildFont(f, pages...) at path.
func WriteFont(t testing.TB, path string, f Font, pages ...string) {
	t.Helper()
	if err := os.WriteFile(path, BuildFont(f, pages...), 0o644); err != nil {
		t.Fatalf("write pdf %s: %v", path, err)
	}
}

func fontDict(f Font) string {
	d := "<< /Type /Font /Subtype /Type1 /BaseFont /" + f.BaseFont + " /Encoding /WinAnsiEncoding"
	if f.GlyphWidth > 0 {
		widths := make([]string, 0, 95)
		for c := 32; c <= 126; c++ {
			w := f.GlyphWidth
			if c == ' ' {
				w = f.SpaceWidth
			}
			widths = append(widths, strconv.Itoa(w))
		}
		d += " /FirstChar 32 /LastChar 126 /Widths [" + strings.Join(widths, " ") + "]"
	}
	return d + " >>"
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

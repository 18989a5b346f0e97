package chunker

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Recursive splits on the coarsest separator present, recursing into pieces
// that are still too long, then greedily merges neighbours back up to Size
// while carrying up to Overlap runes of trailing context into the next chunk.
type Recursive struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewRecursive(size, overlap int) *Recursive {
	return &Recursive{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

func (r *Recursive) SplitText(text string) []string {
	return r.split(text, r.Separators)
}

func (r *Recursive) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, s := range splitOn(text, separator) {
		if utf8.RuneCountInString(s) < r.Size {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			out = append(out, r.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, hardWrap(s, r.Size)...)
		} else {
			out = append(out, r.split(s, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, r.merge(good, separator)...)
	}
	return out
}

func (r *Recursive) merge(splits []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)
	var (
		out     []string
		current []string
		total   int
	)
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, s := range splits {
		l := utf8.RuneCountInString(s)
		if total+l+joinCost() > r.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				out = append(out, doc)
			}
			for total > r.Overlap || (total+l+joinCost() > r.Size && total > 0) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += l + joinCost()
		current = append(current, s)
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// hardWrap is only reached when a custom separator list lacks "".
func hardWrap(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

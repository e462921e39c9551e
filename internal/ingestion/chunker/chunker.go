// Package chunker splits document text into overlapping chunks for indexing.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	// MetaChunkIndex is added to every chunk's metadata.
	MetaChunkIndex = "chunk_index"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Splitter is a recursive character splitter. It tries paragraph breaks
// first, then line breaks, then spaces, then single characters, so chunks
// end on the largest natural boundary that fits. Lengths are in runes.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// New returns a splitter with the given size and overlap. Non-positive size
// falls back to DefaultSize and overlap is clamped to [0, size).
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

func Default() *Splitter { return New(DefaultSize, DefaultOverlap) }

// Chunks splits text and attaches a copy of meta plus chunk_index to each piece.
func (s *Splitter) Chunks(text string, meta map[string]any) []Chunk {
	pieces := s.Split(text)
	out := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		m := make(map[string]any, len(meta)+1)
		for k, v := range meta {
			m[k] = v
		}
		m[MetaChunkIndex] = i
		out = append(out, Chunk{Text: p, Metadata: m})
	}
	return out
}

// Split returns the text pieces in document order. Blank input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = strings.Split(text, "")
	} else {
		for _, part := range strings.Split(text, sep) {
			if part != "" {
				splits = append(splits, part)
			}
		}
	}

	var out, pending []string
	for _, part := range splits {
		if utf8.RuneCountInString(part) < s.Size {
			pending = append(pending, part)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
		} else {
			out = append(out, s.split(part, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge packs consecutive splits into chunks of at most Size runes, carrying
// up to Overlap runes of trailing splits into the next chunk.
func (s *Splitter) merge(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var out, current []string
	total := 0
	for _, d := range splits {
		l := utf8.RuneCountInString(d)
		if total+l+joinCost(len(current)) > s.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > s.Overlap || (total+l+joinCost(len(current)) > s.Size && total > 0) {
				total -= utf8.RuneCountInString(current[0]) + joinCost(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, d)
		total += l + joinCost(len(current)-1)
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

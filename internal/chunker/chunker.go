// Package chunker splits raw document text into overlapping segments used as
// the unit of embedding and retrieval. Consecutive chunks overlap by a fixed
// number of characters so that sentences cut at a window edge still appear
// whole in a neighbouring chunk.
package chunker

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidConfig is returned when chunk parameters cannot produce forward
// progress (overlap >= size, or a non-positive size).
var ErrInvalidConfig = errors.New("chunker: chunk_overlap must be smaller than chunk_size")

// Chunk is one bounded slice of a document, tagged with its position.
type Chunk struct {
	Index  int    `json:"chunk_id"`
	Total  int    `json:"total_chunks"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Split cuts text into chunks of at most size runes where consecutive chunks
// share overlap runes. Within each window the cut point is pulled back to the
// largest natural boundary available: paragraph break first, then line
// break, then word boundary, with a hard character cut as the last resort.
// The cut never moves back past the overlap region, so every step advances.
//
// Empty (or whitespace-only) text yields zero chunks and no error.
func Split(text, source string, size, overlap int) ([]Chunk, error) {
	if size < 1 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}
		cut := boundaryCut(runes, start+overlap+1, end)
		pieces = append(pieces, string(runes[start:cut]))
		start = cut - overlap
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			Index:  i,
			Total:  len(pieces),
			Text:   p,
			Source: source,
		}
	}
	return chunks, nil
}

// boundaryCut returns the best cut position in (min, end], preferring the
// position just after the last paragraph break, then the last line break,
// then the last whitespace rune. end is returned when the window contains no
// natural boundary.
func boundaryCut(runes []rune, min, end int) int {
	paragraph, line, word := -1, -1, -1
	for j := end; j > min; j-- {
		prev := runes[j-1]
		switch {
		case prev == '\n':
			if paragraph < 0 && j-2 >= 0 && runes[j-2] == '\n' {
				paragraph = j
			}
			if line < 0 {
				line = j
			}
		case unicode.IsSpace(prev):
			if word < 0 {
				word = j
			}
		}
		if paragraph > 0 {
			break
		}
	}
	switch {
	case paragraph > 0:
		return paragraph
	case line > 0:
		return line
	case word > 0:
		return word
	default:
		return end
	}
}

package answer

import (
	"fmt"
	"strings"

	"ragstack/internal/vectorstore"
)

// chunkSeparator visually divides attributed sections in the context block.
const chunkSeparator = "\n\n---\n\n"

// TruncationMarker is appended when the assembled context exceeds the
// character budget.
const TruncationMarker = "\n\n... [truncated]"

// Citation ties part of a generated answer back to a retrieved chunk.
// Chunk is the 1-based number used in the prompt, Position the chunk's
// ordinal inside its source document.
type Citation struct {
	Chunk    int    `json:"chunk"`
	Position int    `json:"position"`
	Source   string `json:"source"`
}

// BuildContext renders ranked results into a numbered, attributed context
// block and the parallel citation list. Results must already be ordered most
// relevant first; citation numbers are 1..N in input order. The block is cut
// at budget characters (runes) and marked as truncated when it does not fit.
// Pure function, no I/O.
func BuildContext(results []vectorstore.SearchResult, budget int) (string, []Citation) {
	parts := make([]string, 0, len(results))
	citations := make([]Citation, 0, len(results))
	for i, r := range results {
		n := i + 1
		parts = append(parts, fmt.Sprintf("Chunk %d — position %d — %s\n%s", n, r.ChunkID, r.Source, r.Content))
		citations = append(citations, Citation{
			Chunk:    n,
			Position: r.ChunkID,
			Source:   r.Source,
		})
	}
	context := strings.Join(parts, chunkSeparator)

	if budget > 0 {
		if runes := []rune(context); len(runes) > budget {
			context = string(runes[:budget]) + TruncationMarker
		}
	}
	return context, citations
}

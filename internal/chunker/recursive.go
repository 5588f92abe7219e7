package chunker

import (
	"strings"

	"ragserver/internal/domain"
)

// separators are tried highest priority first; the empty string means a hard
// character cut.
var separators = []string{"\n\n", "\n", " "}

// RecursiveChunker splits text into overlapping windows of at most size runes,
// preferring to cut at paragraph breaks, then line breaks, then spaces, and
// falling back to a hard cut when no boundary exists within range. The same
// document always yields the same chunks.
type RecursiveChunker struct {
	size    int
	overlap int
}

// NewRecursiveChunker creates a chunker with the given window size and overlap
// in runes. Invalid values fall back to 1000/200.
func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &RecursiveChunker{size: size, overlap: overlap}
}

// Chunk splits the document. A document shorter than the chunk size yields
// exactly one chunk; an empty document yields none. Consecutive chunks from
// the same document overlap by the configured number of runes.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	n := len(runes)
	if strings.TrimSpace(document.Text) == "" {
		return nil, nil
	}

	var chunks []domain.Chunk
	start := 0
	idx := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = cutPoint(runes, start, end)
		}
		chunks = append(chunks, domain.Chunk{
			Text:        string(runes[start:end]),
			SourcePath:  document.SourcePath,
			Index:       idx,
			StartOffset: start,
			EndOffset:   end,
		})
		idx++
		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// cutPoint finds the rune offset to end a chunk that starts at start and may
// extend at most to limit. It picks the last occurrence of the highest-priority
// separator within the window, cutting just after the separator so that no
// character is dropped. With no separator in range the cut is hard at limit.
func cutPoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			cut := start + len([]rune(window[:i])) + len([]rune(sep))
			if cut > start {
				return cut
			}
		}
	}
	return limit
}

package ingest

import (
	"strings"
	"unicode"
)

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 200
)

// Chunker splits document text into overlapping windows measured in runes.
// Splits land on word boundaries so no chunk starts or ends mid-word.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Zero or negative inputs fall back to the
// defaults; overlap is clamped below size so the window always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits the text into windows. Short texts produce a single chunk;
// empty or whitespace-only text produces none.
func (c *Chunker) Chunk(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.size {
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = backtrackToBoundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = advanceToBoundary(runes, next)
	}

	return chunks
}

// backtrackToBoundary walks the cut point back to the nearest whitespace so
// the chunk does not end mid-word. Gives up and cuts hard when no boundary
// exists in the window.
func backtrackToBoundary(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

// advanceToBoundary walks forward past a partial word so the next chunk
// starts on a word
func advanceToBoundary(runes []rune, pos int) int {
	if pos <= 0 || pos >= len(runes) {
		return pos
	}
	if unicode.IsSpace(runes[pos-1]) || unicode.IsSpace(runes[pos]) {
		return pos
	}
	for pos < len(runes) && !unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos
}

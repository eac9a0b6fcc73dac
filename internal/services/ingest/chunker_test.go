package ingest

import (
	"strings"
	"testing"
	"unicode"
)

func TestChunkShortText(t *testing.T) {
	c := NewChunker(1200, 200)
	chunks := c.Chunk("a short document body")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "a short document body" {
		t.Errorf("Short text must pass through unchanged, got %q", chunks[0])
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker(1200, 200)
	if chunks := c.Chunk("   \n\t "); chunks != nil {
		t.Errorf("Expected no chunks for whitespace, got %v", chunks)
	}
}

func TestChunkWordBoundaries(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "alpha"
	}
	text := strings.Join(words, " ")

	c := NewChunker(100, 20)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if len([]rune(chunk)) > 100 {
			t.Errorf("Chunk %d exceeds window: %d runes", i, len([]rune(chunk)))
		}
		for _, word := range strings.Fields(chunk) {
			if word != "alpha" {
				t.Fatalf("Chunk %d split a word: %q", i, word)
			}
		}
	}
}

func TestChunkOverlapRepeatsText(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "token"
	}
	text := strings.Join(words, " ")

	c := NewChunker(120, 40)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	// Consecutive chunks share the overlap region
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("Second chunk does not overlap the first:\nfirst tail: %q\nsecond: %q", tail, chunks[1])
	}
}

func TestChunkCoversAllText(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 100)

	c := NewChunker(150, 30)
	chunks := c.Chunk(text)

	total := 0
	for _, chunk := range chunks {
		total += len([]rune(chunk))
	}
	// Overlap means total >= source length; large shortfalls mean dropped text
	if total < len([]rune(strings.TrimSpace(text))) {
		t.Errorf("Chunks cover %d runes, source has %d", total, len([]rune(text)))
	}
}

func TestChunkUnicodeText(t *testing.T) {
	words := make([]string, 80)
	for i := range words {
		words[i] = "日本語テキスト"
	}
	text := strings.Join(words, " ")

	c := NewChunker(100, 20)
	chunks := c.Chunk(text)
	for i, chunk := range chunks {
		for _, r := range chunk {
			if r == unicode.ReplacementChar {
				t.Fatalf("Chunk %d contains a broken rune", i)
			}
		}
	}
}

func TestNewChunkerClampsOverlap(t *testing.T) {
	c := NewChunker(100, 500)
	if c.overlap >= c.size {
		t.Errorf("Overlap %d must stay below size %d", c.overlap, c.size)
	}
}

package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkEmptyInput(t *testing.T) {
	chunks, err := Chunk("", 1000, 200)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}

	chunks, err = Chunk("\n\n   \n\n", 1000, 200)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestChunkSingleShortParagraph(t *testing.T) {
	text := "  a short paragraph that fits comfortably  "
	chunks, err := Chunk(text, 1000, 200)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(text) {
		t.Errorf("chunk = %q, want trimmed input", chunks[0])
	}
}

func TestChunkRejectsOverlapNotSmallerThanSize(t *testing.T) {
	if _, err := Chunk("text", 100, 100); err == nil {
		t.Error("expected error for overlap == max size")
	}
	if _, err := Chunk("text", 100, 150); err == nil {
		t.Error("expected error for overlap > max size")
	}
	if _, err := Chunk("text", 100, -1); err == nil {
		t.Error("expected error for negative overlap")
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := words("w", 400) + "\n\n" + words("x", 50)
	first, err := Chunk(text, 500, 100)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	second, err := Chunk(text, 500, 100)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkRespectsMaxSize(t *testing.T) {
	text := words("w", 300) + "\n\n" + words("x", 20) + "\n\n" + words("y", 200)
	chunks, err := Chunk(text, 400, 80)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range chunks {
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if len(c) > 400 {
			t.Errorf("chunk %d has length %d > 400", i, len(c))
		}
	}
}

func TestChunkOversizedWordBecomesOwnChunk(t *testing.T) {
	long := strings.Repeat("a", 150)
	text := long + " tail"
	chunks, err := Chunk(text, 100, 20)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	found := false
	for _, c := range chunks {
		if c == long {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized word not emitted as its own chunk: %q", chunks)
	}
}

// Three paragraphs totalling ~1500 characters with the first one oversized:
// the long paragraph is word-packed into one full chunk, the remainder plus
// the two short paragraphs fit into a second chunk seeded with the overlap.
func TestChunkOverlapAcrossBoundary(t *testing.T) {
	text := words("w", 200) + "\n\n" + words("x", 25) + "\n\n" + words("y", 25)

	chunks, err := Chunk(text, 1000, 200)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected exactly 2 chunks, got %d", len(chunks))
	}

	first, second := chunks[0], chunks[1]
	overlap := 0
	for n := 200; n >= 1; n-- {
		if n > len(first) || n > len(second) {
			continue
		}
		if second[:n] == first[len(first)-n:] && first[len(first)-n-1] == ' ' {
			overlap = n
			break
		}
	}
	if overlap == 0 {
		t.Fatalf("second chunk does not begin with a word-aligned suffix of the first")
	}
}

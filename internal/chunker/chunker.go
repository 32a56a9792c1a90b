// Package chunker splits document text into overlapping retrieval segments.
package chunker

import (
	"errors"
	"strings"
)

var ErrBadOverlap = errors.New("chunk overlap must be smaller than chunk size")

// Chunk splits text into ordered, non-empty segments of at most maxSize
// bytes. Paragraphs (blank-line separated) are packed greedily; a paragraph
// longer than maxSize is packed word by word, and each flush in that mode
// seeds the next segment with the trailing overlap bytes of the flushed
// segment, aligned to a word boundary. A single word longer than maxSize
// becomes its own oversized segment.
//
// The function is pure: identical arguments always produce identical output.
func Chunk(text string, maxSize, overlap int) ([]string, error) {
	if maxSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, ErrBadOverlap
	}

	var chunks []string
	flush := func(buf string) {
		if s := strings.TrimSpace(buf); s != "" {
			chunks = append(chunks, s)
		}
	}

	var buffer string
	for _, para := range splitParagraphs(text) {
		if len(buffer)+len(para) < maxSize {
			buffer += para + "\n\n"
			continue
		}

		flush(buffer)

		if len(para) <= maxSize {
			buffer = para + "\n\n"
			continue
		}

		buffer = ""
		for _, word := range strings.Fields(para) {
			if len(buffer)+len(word)+1 < maxSize {
				buffer += word + " "
				continue
			}
			done := strings.TrimSpace(buffer)
			flush(done)
			buffer = tailOverlap(done, overlap)
			if buffer != "" {
				buffer += " "
			}
			buffer += word + " "
		}
	}

	flush(buffer)
	return chunks, nil
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// tailOverlap returns the longest whole-word suffix of chunk that fits in
// want bytes. Empty when no word boundary falls inside the window.
func tailOverlap(chunk string, want int) string {
	if want <= 0 || chunk == "" {
		return ""
	}
	if len(chunk) <= want {
		return chunk
	}
	cut := len(chunk) - want
	if chunk[cut-1] == ' ' {
		return chunk[cut:]
	}
	idx := strings.IndexByte(chunk[cut:], ' ')
	if idx < 0 {
		return ""
	}
	return chunk[cut+idx+1:]
}

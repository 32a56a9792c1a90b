// Package prompt assembles the generation prompt from retrieved segments,
// chat history, and optional web-search context.
package prompt

import (
	"strings"

	"docuchat/internal/model"
)

const (
	NoDocumentsPlaceholder = "No relevant documents found."
	NoHistoryPlaceholder   = "No previous messages in this chat."
	NoWebInfoPlaceholder   = "No additional web info found."
)

// RetrievedSegment is one ranked retrieval result, most relevant first.
type RetrievedSegment struct {
	Content  string
	Filename string
}

// Assemble renders the single prompt string sent to the generator.
//
// Segments keep their ranked order and carry a source label. History is
// expected most-recent-first (as fetched) and is re-ordered chronologically.
// webSnippet is included under its own section only when non-empty; callers
// that requested search mode substitute a placeholder on failure, callers
// that did not pass "". The assembler applies no token-budget truncation.
func Assemble(segments []RetrievedSegment, history []model.ChatMessage, webSnippet, query string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant. Use the context provided to answer the user question at the end.\n\n")

	b.WriteString("**Document Context:**\n")
	if len(segments) == 0 {
		b.WriteString(NoDocumentsPlaceholder + "\n")
	} else {
		for _, seg := range segments {
			if seg.Filename != "" {
				b.WriteString("[source: " + seg.Filename + "]\n")
			}
			b.WriteString(seg.Content + "\n")
		}
	}

	if webSnippet != "" {
		b.WriteString("\n**Web Search:**\n")
		b.WriteString(webSnippet + "\n")
	}

	b.WriteString("\n**Chat History:**\n")
	if len(history) == 0 {
		b.WriteString(NoHistoryPlaceholder + "\n")
	} else {
		for i := len(history) - 1; i >= 0; i-- {
			b.WriteString(history[i].Role + ": " + history[i].Content + "\n")
		}
	}

	b.WriteString("\n**User Question:** " + query)
	return b.String()
}

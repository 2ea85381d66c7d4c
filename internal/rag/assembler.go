// Package rag assembles retrieved document text into a context block for
// downstream generation.
package rag

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// NoContextSentinel is returned when no document clears the relevance bar.
const NoContextSentinel = "No relevant context found."

// Defaults for context retrieval.
const (
	DefaultTopK      = 3
	DefaultThreshold = 0.6
	DefaultBudget    = 1000
)

// Assemble concatenates match texts, annotated with their similarity
// scores, into a single context string.
//
// Blocks are included greedily in rank order while the running length stays
// within maxContextLength; the first block that would exceed the budget
// stops assembly. Blocks are never truncated mid-text.
func Assemble(matches []vectorstore.Match, maxContextLength int) string {
	if len(matches) == 0 {
		return NoContextSentinel
	}

	var b strings.Builder
	for _, m := range matches {
		block := fmt.Sprintf("[Similarity: %.2f] %s", m.Score, m.Text)

		next := len(block)
		if b.Len() > 0 {
			next += b.Len() + 2 // blank-line separator
		}
		if next > maxContextLength {
			break
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}

	if b.Len() == 0 {
		return NoContextSentinel
	}
	return b.String()
}

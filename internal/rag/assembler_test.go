package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

func TestAssemble_NoMatches(t *testing.T) {
	assert.Equal(t, NoContextSentinel, Assemble(nil, 1000))
	assert.Equal(t, NoContextSentinel, Assemble([]vectorstore.Match{}, 1000))
}

func TestAssemble_SingleMatch(t *testing.T) {
	got := Assemble([]vectorstore.Match{{Text: "relevant fact", Score: 0.9}}, 1000)
	assert.Equal(t, "[Similarity: 0.90] relevant fact", got)
}

func TestAssemble_JoinsWithBlankLines(t *testing.T) {
	matches := []vectorstore.Match{
		{Text: "first", Score: 0.95},
		{Text: "second", Score: 0.8},
	}
	got := Assemble(matches, 1000)
	assert.Equal(t, "[Similarity: 0.95] first\n\n[Similarity: 0.80] second", got)
}

func TestAssemble_BudgetStopsBeforeOverflow(t *testing.T) {
	matches := []vectorstore.Match{
		{Text: "short", Score: 0.9},
		{Text: strings.Repeat("x", 500), Score: 0.8},
	}

	first := "[Similarity: 0.90] short"
	got := Assemble(matches, len(first)+10)
	assert.Equal(t, first, got, "a block that would overflow is dropped whole, never truncated")
}

func TestAssemble_FirstBlockTooLarge(t *testing.T) {
	got := Assemble([]vectorstore.Match{{Text: strings.Repeat("x", 100), Score: 0.9}}, 50)
	assert.Equal(t, NoContextSentinel, got)
}

func TestAssemble_ExactFit(t *testing.T) {
	block := "[Similarity: 0.90] fits"
	got := Assemble([]vectorstore.Match{{Text: "fits", Score: 0.9}}, len(block))
	assert.Equal(t, block, got)
}

func TestAssemble_ManyMatchesWithinBudget(t *testing.T) {
	var matches []vectorstore.Match
	for i := 0; i < 5; i++ {
		matches = append(matches, vectorstore.Match{Text: fmt.Sprintf("doc %d", i), Score: 0.9})
	}
	got := Assemble(matches, 10000)
	assert.Equal(t, 5, strings.Count(got, "[Similarity:"))
	assert.Equal(t, 4, strings.Count(got, "\n\n"))
}

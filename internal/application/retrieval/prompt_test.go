package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptContext_Empty(t *testing.T) {
	assert.Equal(t, "", BuildPromptContext(nil, 5, 300))
}

func TestBuildPromptContext_Format(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: Chunk{SeqIndex: 2, Text: "Vacation and\npolicy details here."}, Score: 0.9},
		{Chunk: Chunk{SeqIndex: 0, Text: "Vacation days accrue monthly."}, Score: 0.5},
	}
	got := BuildPromptContext(chunks, 5, 300)

	lines := strings.Split(got, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "[1] (Chunk:2)")
	assert.Contains(t, lines[1], "Vacation and policy details here.")
	assert.Contains(t, lines[2], "[2] (Chunk:0)")
	assert.NotContains(t, got, "0.9")
}

func TestBuildPromptContext_TruncatesAndLimits(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: Chunk{SeqIndex: 0, Text: strings.Repeat("a", 500)}},
		{Chunk: Chunk{SeqIndex: 1, Text: "second"}},
		{Chunk: Chunk{SeqIndex: 2, Text: "third"}},
	}
	got := BuildPromptContext(chunks, 2, 100)

	lines := strings.Split(got, "\n")
	assert.Len(t, lines, 3)
	assert.NotContains(t, got, "third")
	assert.Contains(t, lines[1], "…")
	assert.LessOrEqual(t, len([]rune(lines[1])), 130)
}

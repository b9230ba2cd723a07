package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vacationChunks() []Chunk {
	texts := []string{
		"Vacation days accrue monthly.",
		"Parking is free.",
		"Vacation and policy details here.",
	}
	out := make([]Chunk, 0, len(texts))
	for i, s := range texts {
		out = append(out, Chunk{SeqIndex: i, Text: s})
	}
	return out
}

func TestKeywordSearch_ScoreAndOrder(t *testing.T) {
	got := KeywordSearch("What is the vacation policy?", vacationChunks(), 3, 0)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].SeqIndex)
	assert.Equal(t, float64(2), got[0].Score)
	assert.Equal(t, 0, got[1].SeqIndex)
	assert.Equal(t, float64(1), got[1].Score)
}

func TestKeywordSearch_PunctuationStripped(t *testing.T) {
	// 词尾标点不参与匹配；"policy?" 应命中 "policy"
	got := KeywordSearch("policy?", vacationChunks(), 3, 0)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].SeqIndex)
	assert.Equal(t, float64(1), got[0].Score)
}

func TestKeywordSearch_CaseInsensitive(t *testing.T) {
	got := KeywordSearch("VACATION", vacationChunks(), 3, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].SeqIndex)
	assert.Equal(t, 2, got[1].SeqIndex)
}

func TestKeywordSearch_ShortTokensIgnored(t *testing.T) {
	// 全部词长 < 3，不参与匹配
	got := KeywordSearch("is a of", vacationChunks(), 3, 0)
	assert.Empty(t, got)
}

func TestKeywordSearch_MinTokenRunesConfigurable(t *testing.T) {
	// 阈值放宽到 2 后 "is" 参与匹配
	got := KeywordSearch("is", vacationChunks(), 3, 2)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].SeqIndex)

	assert.Empty(t, KeywordSearch("is", vacationChunks(), 3, 0))
}

func TestKeywordSearch_DuplicateTokensCountOnce(t *testing.T) {
	got := KeywordSearch("vacation vacation vacation", vacationChunks(), 3, 0)
	require.Len(t, got, 2)
	assert.Equal(t, float64(1), got[0].Score)
}

func TestKeywordSearch_TieBreakBySeqIndex(t *testing.T) {
	chunks := []Chunk{
		{SeqIndex: 0, Text: "alpha beta"},
		{SeqIndex: 1, Text: "alpha beta"},
		{SeqIndex: 2, Text: "alpha beta"},
	}
	got := KeywordSearch("alpha beta", chunks, 10, 0)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].SeqIndex)
	assert.Equal(t, 1, got[1].SeqIndex)
	assert.Equal(t, 2, got[2].SeqIndex)
}

func TestKeywordSearch_TopNLimit(t *testing.T) {
	chunks := []Chunk{
		{SeqIndex: 0, Text: "policy"},
		{SeqIndex: 1, Text: "policy"},
		{SeqIndex: 2, Text: "policy"},
		{SeqIndex: 3, Text: "policy"},
	}
	got := KeywordSearch("policy", chunks, 3, 0)
	assert.Len(t, got, 3)
}

func TestKeywordSearch_NoMatch(t *testing.T) {
	got := KeywordSearch("submarine", vacationChunks(), 3, 0)
	assert.Empty(t, got)
}

func TestKeywordSearch_EmptyInputs(t *testing.T) {
	assert.Empty(t, KeywordSearch("", vacationChunks(), 3, 0))
	assert.Empty(t, KeywordSearch("vacation", nil, 3, 0))
	assert.Empty(t, KeywordSearch("vacation", vacationChunks(), 0, 0))
}

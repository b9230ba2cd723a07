package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRunes_InvalidConfiguration(t *testing.T) {
	_, err := SplitRunes("hello", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = SplitRunes("hello", 10, 10)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = SplitRunes("hello", 10, 12)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = SplitRunes("hello", 10, -1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestSplitRunes_Empty(t *testing.T) {
	chunks, err := SplitRunes("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitRunes_SingleChunk(t *testing.T) {
	chunks, err := SplitRunes("short text", 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 10, chunks[0].CharEnd)
}

func TestSplitRunes_OverlapWindows(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks, err := SplitRunes(text, 10, 4)
	require.NoError(t, err)

	// step = 6: [0,10) [6,16) [12,22) [18,25)
	require.Len(t, chunks, 4)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 10, chunks[0].CharEnd)
	assert.Equal(t, 6, chunks[1].CharStart)
	assert.Equal(t, 18, chunks[3].CharStart)
	assert.Equal(t, 25, chunks[3].CharEnd)

	for i, c := range chunks {
		assert.Equal(t, i, c.SeqIndex)
		assert.Equal(t, c.CharEnd-c.CharStart, len([]rune(c.Text)))
	}
}

func TestSplitRunes_MultibyteOffsets(t *testing.T) {
	text := "一二三四五六七八九十"
	chunks, err := SplitRunes(text, 4, 1)
	require.NoError(t, err)

	// step = 3: [0,4) [3,7) [6,10)
	require.Len(t, chunks, 3)
	assert.Equal(t, "一二三四", chunks[0].Text)
	assert.Equal(t, "四五六七", chunks[1].Text)
	assert.Equal(t, "七八九十", chunks[2].Text)
	assert.Equal(t, 3, chunks[1].CharStart)
	assert.Equal(t, 10, chunks[2].CharEnd)
}

func TestSplitRunes_SpansRecoverOriginal(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog, twice."
	runes := []rune(text)
	chunks, err := SplitRunes(text, 12, 3)
	require.NoError(t, err)

	for _, c := range chunks {
		assert.Equal(t, string(runes[c.CharStart:c.CharEnd]), c.Text)
	}

	// 相邻分块的区间必须衔接（end >= 下一个 start）
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].CharEnd, chunks[i].CharStart)
	}
	assert.Equal(t, len(runes), chunks[len(chunks)-1].CharEnd)
}

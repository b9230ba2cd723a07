package llm

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-api/internal/application/qa"
)

func TestBuildMessages_WithContext(t *testing.T) {
	msgs := buildMessages(&qa.AnswerRequest{
		Question: "年假有几天？",
		Context:  "[片段 1]\n员工每年有 15 天年假。",
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, answerSystemPrompt, msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "员工每年有 15 天年假。")
	assert.Contains(t, msgs[1].Content, "问题：年假有几天？")
}

func TestBuildMessages_EmptyContextNoted(t *testing.T) {
	for _, contextText := range []string{"", "   "} {
		msgs := buildMessages(&qa.AnswerRequest{Question: "年假有几天？", Context: contextText})

		require.Len(t, msgs, 2)
		assert.Contains(t, msgs[1].Content, noContextNote)
		assert.Contains(t, msgs[1].Content, "问题：年假有几天？")
	}
}

func TestBuildMessages_HistoryRoles(t *testing.T) {
	msgs := buildMessages(&qa.AnswerRequest{
		Question: "那病假呢？",
		Context:  "[片段 1]\n病假规定见手册。",
		History: []qa.HistoryTurn{
			{Role: "user", Content: "年假有几天？"},
			{Role: "assistant", Content: "15 天。"},
		},
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "年假有几天？", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "15 天。", msgs[2].Content)
	assert.Equal(t, schema.User, msgs[3].Role)
}

package tokenizer

import (
	"encoding/json"
	"testing"

	"github.com/arvalo/arvalo/types"
	"github.com/stretchr/testify/assert"
)

func TestEstimatorCounter_CountTokens(t *testing.T) {
	e := NewEstimatorCounter()
	assert.Equal(t, 0, e.CountTokens(""))
	assert.Equal(t, 1, e.CountTokens("a"))
	assert.Equal(t, 4, e.CountTokens("0123456789abcdef"))
	assert.Equal(t, 2, e.CountTokens("退货政策"))
}

func TestEstimatorCounter_CountMessages(t *testing.T) {
	e := NewEstimatorCounter()
	msgs := []types.Message{
		types.NewUserMessage("0123456789abcdef"),
		types.NewAssistantMessage(types.NewToolUseBlock("c1", "echo", json.RawMessage(`{"x":1}`))),
		types.NewToolResultsMessage(types.ToolSuccess(1).Block("c1")),
	}
	got := e.CountMessages("sys", msgs)
	assert.Greater(t, got, 3*perMessageOverhead+conversationEnd)
}

func TestTiktokenCounter_EmptyText(t *testing.T) {
	c := NewTiktokenCounter("")
	assert.Equal(t, 0, c.CountTokens(""))
}

package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4",
			"content": [
				{"type": "text", "text": "checking the price"},
				{"type": "tool_use", "id": "toolu_1", "name": "check_price", "input": {"url": "https://shop.example/p/1"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "test", BaseURL: srv.URL, Model: "claude-sonnet-4"}, nil)
	schema := types.NewObjectSchema().
		AddProperty("url", types.NewStringSchema("product url")).
		AddRequired("url")

	resp, err := p.Complete(context.Background(), &llm.Request{
		MaxTokens:   512,
		Temperature: 0.2,
		System:      "you are a price detective",
		Messages: []types.Message{
			types.NewUserMessage("check purchase p1"),
			types.NewAssistantMessage(types.NewToolUseBlock("toolu_0", "get_purchase", json.RawMessage(`{"purchase_id":"p1"}`))),
			types.NewToolResultsMessage(types.ToolSuccess(map[string]any{"id": "p1"}).Block("toolu_0")),
		},
		Tools: []types.ToolSchema{{Name: "check_price", Description: "fetch price", Parameters: schema}},
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4", captured["model"])
	msgs := captured["messages"].([]any)
	assert.Len(t, msgs, 3)
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "check_price", tools[0].(map[string]any)["name"])

	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, 150, resp.Usage.Total())
	require.Len(t, resp.Content, 2)
	assert.Equal(t, types.BlockText, resp.Content[0].Type)
	assert.Equal(t, "toolu_1", resp.Content[1].ID)
	assert.JSONEq(t, `{"url":"https://shop.example/p/1"}`, string(resp.Content[1].Input))
}

func TestProvider_ClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "test", BaseURL: srv.URL, Model: "claude-sonnet-4"}, nil)
	_, err := p.Complete(context.Background(), &llm.Request{
		MaxTokens: 16,
		Messages:  []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}

func TestBuildMessages_RejectsBadToolInput(t *testing.T) {
	_, err := buildMessages([]types.Message{
		types.NewAssistantMessage(types.ContentBlock{Type: types.BlockToolUse, ID: "x", Name: "y", Input: json.RawMessage(`{bad`)}),
	})
	assert.Error(t, err)
}

package llm

import (
	"context"

	"github.com/arvalo/arvalo/types"
)

// Stop reasons reported by providers.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
	StopSequence  = "stop_sequence"
)

// Usage 单次调用的 Token 用量
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Request 模型补全请求
type Request struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []types.Message    `json:"messages"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
}

// Response 模型补全响应
type Response struct {
	ID         string               `json:"id,omitempty"`
	Model      string               `json:"model,omitempty"`
	Content    []types.ContentBlock `json:"content"`
	Usage      Usage                `json:"usage"`
	StopReason string               `json:"stop_reason,omitempty"`
}

// ToolUses returns the tool_use blocks in the order the model emitted them.
func (r *Response) ToolUses() []types.ContentBlock {
	return types.NewAssistantMessage(r.Content...).ToolUses()
}

// NaturalStop reports whether the stop reason signals a finished answer.
func (r *Response) NaturalStop() bool {
	switch r.StopReason {
	case StopEndTurn, "stop":
		return true
	}
	return false
}

// Provider 模型补全能力
type Provider interface {
	// Name 返回 Provider 名称
	Name() string

	// Complete 发送一次补全请求
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req *Request) (*Response, error)

// Name implements Provider.
func (f ProviderFunc) Name() string { return "func" }

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

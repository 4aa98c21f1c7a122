// Package mocks 提供测试用的模型与工具替身。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/types"
)

// Step 脚本中的一轮：返回 Response 或 Err
type Step struct {
	Response *llm.Response
	Err      error
}

// ScriptedProvider 按脚本逐轮返回响应。脚本用完后重复最后一步，
// 或在设置了 Fallback 时调用 Fallback。
type ScriptedProvider struct {
	mu       sync.Mutex
	name     string
	steps    []Step
	fallback func(ctx context.Context, req *llm.Request) (*llm.Response, error)
	requests []*llm.Request
}

// NewScriptedProvider 创建脚本化 Provider
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{name: "scripted", steps: steps}
}

// WithFallback 设置脚本之外的响应函数
func (p *ScriptedProvider) WithFallback(fn func(ctx context.Context, req *llm.Request) (*llm.Response, error)) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = fn
	return p
}

// Then 追加一步响应
func (p *ScriptedProvider) Then(resp *llm.Response) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, Step{Response: resp})
	return p
}

// ThenError 追加一步错误
func (p *ScriptedProvider) ThenError(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, Step{Err: err})
	return p
}

func (p *ScriptedProvider) Name() string { return p.name }

func (p *ScriptedProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]types.Message(nil), req.Messages...)
	p.requests = append(p.requests, &snapshot)
	call := len(p.requests) - 1
	fallback := p.fallback
	var step *Step
	switch {
	case call < len(p.steps):
		step = &p.steps[call]
	case fallback == nil && len(p.steps) > 0:
		step = &p.steps[len(p.steps)-1]
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step == nil {
		if fallback != nil {
			return fallback(ctx, req)
		}
		return nil, fmt.Errorf("scripted provider: no step for call %d", call)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Calls 返回调用次数
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests 返回记录的请求快照
func (p *ScriptedProvider) Requests() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// --- 响应构造 ---

// TextResponse 只含文本块、自然停止的响应
func TextResponse(text string, in, out int) *llm.Response {
	return &llm.Response{
		Content:    []types.ContentBlock{types.NewTextBlock(text)},
		Usage:      llm.Usage{InputTokens: in, OutputTokens: out},
		StopReason: llm.StopEndTurn,
	}
}

// ToolCall 描述一次工具调用
type ToolCall struct {
	ID    string
	Name  string
	Input any
}

// ToolUseResponse 请求工具调用的响应，可带一段前置文本
func ToolUseResponse(text string, in, out int, calls ...ToolCall) *llm.Response {
	resp := &llm.Response{
		Usage:      llm.Usage{InputTokens: in, OutputTokens: out},
		StopReason: llm.StopToolUse,
	}
	if text != "" {
		resp.Content = append(resp.Content, types.NewTextBlock(text))
	}
	for _, c := range calls {
		raw, err := json.Marshal(c.Input)
		if err != nil || c.Input == nil {
			raw = []byte(`{}`)
		}
		resp.Content = append(resp.Content, types.NewToolUseBlock(c.ID, c.Name, raw))
	}
	return resp
}

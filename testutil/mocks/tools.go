package mocks

import (
	"context"
	"errors"
	"sync"
)

// EchoFunc 原样返回输入
func EchoFunc(_ context.Context, params map[string]any) (any, error) {
	return params, nil
}

// FailingFunc 总是返回指定错误
func FailingFunc(msg string) func(context.Context, map[string]any) (any, error) {
	return func(context.Context, map[string]any) (any, error) {
		return nil, errors.New(msg)
	}
}

// CallLog 记录工具调用顺序，可并发使用
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Wrap 包装工具函数，调用时记录名称
func (l *CallLog) Wrap(name string, fn func(context.Context, map[string]any) (any, error)) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, params map[string]any) (any, error) {
		l.mu.Lock()
		l.calls = append(l.calls, name)
		l.mu.Unlock()
		return fn(ctx, params)
	}
}

// Calls 返回调用记录副本
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Package ctxkeys 定义跨层传递的 context 键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	userIDKey      contextKey = "user_id"
	executionIDKey contextKey = "execution_id"
	agentNameKey   contextKey = "agent_name"
	requestIDKey   contextKey = "request_id"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithUserID 设置当前执行所属用户，空值不写入
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

// UserID 获取用户 ID
func UserID(ctx context.Context) (string, bool) {
	return stringValue(ctx, userIDKey)
}

// WithExecutionID 设置 Agent 执行 ID
func WithExecutionID(ctx context.Context, id string) context.Context {
	return withString(ctx, executionIDKey, id)
}

// ExecutionID 获取 Agent 执行 ID
func ExecutionID(ctx context.Context) (string, bool) {
	return stringValue(ctx, executionIDKey)
}

// WithAgentName 设置正在执行的 Agent 名称
func WithAgentName(ctx context.Context, name string) context.Context {
	return withString(ctx, agentNameKey, name)
}

// AgentName 获取 Agent 名称
func AgentName(ctx context.Context) (string, bool) {
	return stringValue(ctx, agentNameKey)
}

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

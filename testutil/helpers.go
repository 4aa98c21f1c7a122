package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout 单个测试中 Agent 执行的上限，防止脚本化模型漏写响应时测试挂死
const DefaultTimeout = 30 * time.Second

// TestContext 返回 DefaultTimeout 后过期的上下文，测试结束时自动取消
func TestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文，用于验证 FAILED/canceled 路径
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

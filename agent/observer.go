package agent

import (
	"time"

	"github.com/arvalo/arvalo/agent/observability"
)

// Observer 接收执行过程中的观测事件，observability.Monitor 实现了该接口
type Observer interface {
	ExecutionStarted(agentName, executionID string)
	ExecutionFinished(metric observability.ExecutionMetric)
	ToolCalled(agentName, tool string, success bool, d time.Duration)
	ModelCalled(agentName, model string, inputTokens, outputTokens int, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ExecutionStarted(string, string)                            {}
func (nopObserver) ExecutionFinished(observability.ExecutionMetric)            {}
func (nopObserver) ToolCalled(string, string, bool, time.Duration)             {}
func (nopObserver) ModelCalled(string, string, int, int, time.Duration, error) {}

var _ Observer = (*observability.Monitor)(nil)

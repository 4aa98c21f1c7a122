// Package observability 记录 Agent 执行指标。
//
// Monitor 在固定容量的环形缓冲区中保留最近的 ExecutionMetric，
// 提供聚合统计与实时订阅，并把每条记录转发给 Reporter（通常是 Prometheus 采集器）。
// 缓冲区只存在于单进程内存中，多实例部署时以 Reporter 侧的指标为准。
package observability

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity 默认保留的执行记录数
const DefaultCapacity = 1000

// ExecutionMetric 单次执行的观测记录
type ExecutionMetric struct {
	AgentName   string        `json:"agent_name"`
	ExecutionID string        `json:"execution_id"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	State       string        `json:"state"`
	Iterations  int           `json:"iterations"`
	TokensUsed  int           `json:"tokens_used"`
	Cost        float64       `json:"cost"`
	ToolsUsed   []string      `json:"tools_used"`
	Error       string        `json:"error,omitempty"`
}

// Reporter 接收指标的外部管道
type Reporter interface {
	RecordAgentExecution(agent, state string, success bool, iterations, tokens int, cost float64, d time.Duration)
	RecordToolCall(agent, tool string, success bool, d time.Duration)
	RecordModelRequest(agent, model, status string, inputTokens, outputTokens int, d time.Duration)
}

// Stats 聚合统计
type Stats struct {
	TotalExecutions int            `json:"total_executions"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	SuccessRate     float64        `json:"success_rate"`
	AvgDuration     time.Duration  `json:"avg_duration"`
	AvgIterations   float64        `json:"avg_iterations"`
	TotalTokens     int            `json:"total_tokens"`
	TotalCost       float64        `json:"total_cost"`
	ToolUsage       map[string]int `json:"tool_usage"`
}

// Monitor 执行监控器
type Monitor struct {
	mu       sync.RWMutex
	buf      []ExecutionMetric
	next     int
	full     bool
	started  map[string]time.Time
	subs     map[int]chan ExecutionMetric
	subSeq   int
	reporter Reporter
	logger   *zap.Logger
}

// MonitorOption 配置 Monitor
type MonitorOption func(*Monitor)

// WithReporter 转发指标到外部管道
func WithReporter(r Reporter) MonitorOption {
	return func(m *Monitor) { m.reporter = r }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor 创建监控器，capacity <= 0 时使用 DefaultCapacity
func NewMonitor(capacity int, opts ...MonitorOption) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Monitor{
		buf:     make([]ExecutionMetric, capacity),
		started: make(map[string]time.Time),
		subs:    make(map[int]chan ExecutionMetric),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExecutionStarted 标记执行开始
func (m *Monitor) ExecutionStarted(agentName, executionID string) {
	m.mu.Lock()
	m.started[executionID] = time.Now()
	m.mu.Unlock()
	m.logger.Debug("execution started", zap.String("agent", agentName), zap.String("execution_id", executionID))
}

// ExecutionFinished 写入一条完成记录
func (m *Monitor) ExecutionFinished(metric ExecutionMetric) {
	m.mu.Lock()
	if start, ok := m.started[metric.ExecutionID]; ok {
		if metric.StartTime.IsZero() {
			metric.StartTime = start
		}
		delete(m.started, metric.ExecutionID)
	}
	m.mu.Unlock()
	m.Record(metric)
}

// ToolCalled implements the agent observer hook.
func (m *Monitor) ToolCalled(agentName, tool string, success bool, d time.Duration) {
	if m.reporter != nil {
		m.reporter.RecordToolCall(agentName, tool, success, d)
	}
}

// ModelCalled implements the agent observer hook.
func (m *Monitor) ModelCalled(agentName, model string, inputTokens, outputTokens int, d time.Duration, err error) {
	if m.reporter == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.reporter.RecordModelRequest(agentName, model, status, inputTokens, outputTokens, d)
}

// Record 写入记录，缓冲区满时覆盖最旧的一条
func (m *Monitor) Record(metric ExecutionMetric) {
	if metric.Duration == 0 && !metric.EndTime.IsZero() && !metric.StartTime.IsZero() {
		metric.Duration = metric.EndTime.Sub(metric.StartTime)
	}

	m.mu.Lock()
	m.buf[m.next] = metric
	m.next = (m.next + 1) % len(m.buf)
	if m.next == 0 {
		m.full = true
	}
	// 非阻塞发送，持锁期间订阅不会被关闭
	for _, ch := range m.subs {
		select {
		case ch <- metric:
		default:
			// 订阅者太慢，丢弃
		}
	}
	m.mu.Unlock()

	if m.reporter != nil {
		m.reporter.RecordAgentExecution(metric.AgentName, metric.State, metric.Success,
			metric.Iterations, metric.TokensUsed, metric.Cost, metric.Duration)
	}
}

// Len 当前保留的记录数
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.buf)
	}
	return m.next
}

// Recent 返回最近 n 条记录，最新的在前；n <= 0 返回全部
func (m *Monitor) Recent(n int) []ExecutionMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(n)
}

func (m *Monitor) recentLocked(n int) []ExecutionMetric {
	size := m.next
	if m.full {
		size = len(m.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]ExecutionMetric, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out
}

// Stats 全部保留记录的聚合统计
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate(m.recentLocked(0), "")
}

// AgentStats 单个 Agent 的聚合统计
func (m *Monitor) AgentStats(agentName string) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate(m.recentLocked(0), agentName)
}

// Subscribe 订阅新记录。返回的函数用于取消订阅。
func (m *Monitor) Subscribe(buffer int) (<-chan ExecutionMetric, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan ExecutionMetric, buffer)

	m.mu.Lock()
	id := m.subSeq
	m.subSeq++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func aggregate(metrics []ExecutionMetric, agentName string) Stats {
	s := Stats{ToolUsage: make(map[string]int)}
	var totalDuration time.Duration
	totalIterations := 0
	for _, mt := range metrics {
		if agentName != "" && mt.AgentName != agentName {
			continue
		}
		s.TotalExecutions++
		if mt.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		totalDuration += mt.Duration
		totalIterations += mt.Iterations
		s.TotalTokens += mt.TokensUsed
		s.TotalCost += mt.Cost
		for _, tool := range mt.ToolsUsed {
			s.ToolUsage[tool]++
		}
	}
	if s.TotalExecutions > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalExecutions)
		s.AvgDuration = totalDuration / time.Duration(s.TotalExecutions)
		s.AvgIterations = float64(totalIterations) / float64(s.TotalExecutions)
	}
	return s
}

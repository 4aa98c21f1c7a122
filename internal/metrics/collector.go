package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 模型调用指标
	modelRequestsTotal   *prometheus.CounterVec
	modelRequestDuration *prometheus.HistogramVec
	modelTokens          *prometheus.CounterVec

	// Agent 指标
	agentExecutionsTotal   *prometheus.CounterVec
	agentExecutionDuration *prometheus.HistogramVec
	agentIterations        *prometheus.HistogramVec
	agentCost              *prometheus.CounterVec
	toolCallsTotal         *prometheus.CounterVec
	toolCallDuration       *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnections   *prometheus.GaugeVec
	dbQueryDuration *prometheus.HistogramVec

	// 价格巡检指标
	sweepRuns      *prometheus.CounterVec
	sweepPurchases *prometheus.CounterVec
	sweepDuration  prometheus.Histogram

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用独立 Registry，并附带 Go 运行时与进程指标。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	c := &Collector{gatherer: gatherer, logger: logger.With(zap.String("component", "metrics"))}

	// =========================================================================
	// 🌐 HTTP
	// =========================================================================

	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "route"},
	)

	// =========================================================================
	// 🤖 模型调用
	// =========================================================================

	c.modelRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of model completion requests",
		},
		[]string{"agent", "model", "status"},
	)
	c.modelRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Model completion latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"agent", "model"},
	)
	c.modelTokens = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens consumed by model requests",
		},
		[]string{"agent", "model", "direction"},
	)

	// =========================================================================
	// 🧠 Agent 与工具
	// =========================================================================

	c.agentExecutionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent loop executions by terminal state",
		},
		[]string{"agent", "state", "status"},
	)
	c.agentExecutionDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)
	c.agentIterations = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_iterations",
			Help:      "Loop iterations used per execution",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"agent"},
	)
	c.agentCost = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cost_usd_total",
			Help:      "Estimated model spend in USD",
		},
		[]string{"agent"},
	)
	c.toolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"agent", "tool", "status"},
	)
	c.toolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// =========================================================================
	// 💾 缓存 / 数据库
	// =========================================================================

	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)
	c.cacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)
	c.dbConnections = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database connections by state",
		},
		[]string{"database", "state"},
	)
	c.dbQueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"database", "operation", "status"},
	)

	// =========================================================================
	// 🔎 价格巡检
	// =========================================================================

	c.sweepRuns = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Price drop sweep runs",
		},
		[]string{"status"},
	)
	c.sweepPurchases = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_purchases_total",
			Help:      "Purchases handled by price drop sweeps by outcome",
		},
		[]string{"outcome"},
	)
	c.sweepDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Price drop sweep duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 300, 900},
	})

	return c
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求。route 应为路由模板而不是原始路径，避免 label 基数膨胀。
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration, respSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	if respSize > 0 {
		c.httpResponseSize.WithLabelValues(method, route).Observe(float64(respSize))
	}
}

// =============================================================================
// 🧠 observability.Reporter
// =============================================================================

// RecordAgentExecution 记录一次 Agent 执行
func (c *Collector) RecordAgentExecution(agent, state string, success bool, iterations, tokens int, cost float64, d time.Duration) {
	c.agentExecutionsTotal.WithLabelValues(agent, state, outcome(success)).Inc()
	c.agentExecutionDuration.WithLabelValues(agent).Observe(d.Seconds())
	c.agentIterations.WithLabelValues(agent).Observe(float64(iterations))
	if cost > 0 {
		c.agentCost.WithLabelValues(agent).Add(cost)
	}
	c.logger.Debug("agent execution recorded",
		zap.String("agent", agent),
		zap.String("state", state),
		zap.Int("tokens", tokens),
	)
}

// RecordToolCall 记录工具调用
func (c *Collector) RecordToolCall(agent, tool string, success bool, d time.Duration) {
	c.toolCallsTotal.WithLabelValues(agent, tool, outcome(success)).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordModelRequest 记录模型调用
func (c *Collector) RecordModelRequest(agent, model, status string, inputTokens, outputTokens int, d time.Duration) {
	c.modelRequestsTotal.WithLabelValues(agent, model, status).Inc()
	c.modelRequestDuration.WithLabelValues(agent, model).Observe(d.Seconds())
	if inputTokens > 0 {
		c.modelTokens.WithLabelValues(agent, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.modelTokens.WithLabelValues(agent, model, "output").Add(float64(outputTokens))
	}
}

// =============================================================================
// 💾 缓存 / 数据库
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordDBConnections 记录连接池状态
func (c *Collector) RecordDBConnections(database string, inUse, idle int) {
	c.dbConnections.WithLabelValues(database, "in_use").Set(float64(inUse))
	c.dbConnections.WithLabelValues(database, "idle").Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, err error, d time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation, outcome(err == nil)).Observe(d.Seconds())
}

// =============================================================================
// 🔎 价格巡检
// =============================================================================

// RecordSweep 记录一次巡检结果
func (c *Collector) RecordSweep(err error, checked, failed, claimable, skipped int, d time.Duration) {
	c.sweepRuns.WithLabelValues(outcome(err == nil)).Inc()
	if err != nil {
		return
	}
	c.sweepPurchases.WithLabelValues("checked").Add(float64(checked))
	c.sweepPurchases.WithLabelValues("failed").Add(float64(failed))
	c.sweepPurchases.WithLabelValues("claimable").Add(float64(claimable))
	c.sweepPurchases.WithLabelValues("skipped").Add(float64(skipped))
	c.sweepDuration.Observe(d.Seconds())
}

// =============================================================================
// 🔧 辅助
// =============================================================================

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return strconv.Itoa(status)
	}
}

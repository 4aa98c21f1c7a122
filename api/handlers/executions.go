package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/arvalo/arvalo/agent/observability"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Execution Handler
// =============================================================================

// ExecutionMonitor 执行记录来源，*observability.Monitor 实现了该接口
type ExecutionMonitor interface {
	Recent(n int) []observability.ExecutionMetric
	Stats() observability.Stats
	AgentStats(agentName string) observability.Stats
	Subscribe(buffer int) (<-chan observability.ExecutionMetric, func())
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// ExecutionHandler 执行记录查询与实时推送
type ExecutionHandler struct {
	monitor        ExecutionMonitor
	originPatterns []string
	logger         *zap.Logger
}

// NewExecutionHandler 创建执行记录处理器。originPatterns 为允许跨域建立 websocket 的来源。
func NewExecutionHandler(monitor ExecutionMonitor, originPatterns []string, logger *zap.Logger) *ExecutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionHandler{
		monitor:        monitor,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "executions")),
	}
}

// HandleRecent GET /v1/executions?limit=&agent=
func (h *ExecutionHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRecentLimit)
	if limit == 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	agentName := r.URL.Query().Get("agent")

	if agentName == "" {
		WriteSuccess(w, h.monitor.Recent(limit))
		return
	}
	out := make([]observability.ExecutionMetric, 0, limit)
	for _, m := range h.monitor.Recent(0) {
		if m.AgentName != agentName {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	WriteSuccess(w, out)
}

// HandleStats GET /v1/executions/stats?agent=
func (h *ExecutionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("agent"); name != "" {
		WriteSuccess(w, h.monitor.AgentStats(name))
		return
	}
	WriteSuccess(w, h.monitor.Stats())
}

// HandleStream GET /v1/executions/stream?agent=
//
// 升级为 websocket 后逐条推送新的 ExecutionMetric（JSON 文本帧）。客户端发来的消息被忽略。
func (h *ExecutionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	agentName := r.URL.Query().Get("agent")
	ctx := conn.CloseRead(r.Context())

	metrics, unsubscribe := h.monitor.Subscribe(64)
	defer unsubscribe()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	h.logger.Debug("execution stream opened", zap.String("remote", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := h.write(ctx, func(c context.Context) error { return conn.Ping(c) }); err != nil {
				return
			}
		case m, ok := <-metrics:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "monitor closed")
				return
			}
			if agentName != "" && m.AgentName != agentName {
				continue
			}
			if err := h.write(ctx, func(c context.Context) error { return wsjson.Write(c, conn, m) }); err != nil {
				h.logger.Debug("execution stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *ExecutionHandler) write(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return fn(ctx)
}

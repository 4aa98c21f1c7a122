package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arvalo/arvalo/agent/observability"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededMonitor() *observability.Monitor {
	m := observability.NewMonitor(10)
	now := time.Now()
	for i, name := range []string{"receipt", "warranty", "receipt", "price-detective"} {
		m.Record(observability.ExecutionMetric{
			AgentName:  name,
			StartTime:  now.Add(time.Duration(i) * time.Second),
			EndTime:    now.Add(time.Duration(i)*time.Second + 100*time.Millisecond),
			Success:    name != "price-detective",
			State:      "COMPLETE",
			Iterations: 2,
			TokensUsed: 100,
			ToolsUsed:  []string{"get_receipt"},
		})
	}
	return m
}

func TestExecutionHandler_Recent(t *testing.T) {
	h := NewExecutionHandler(seededMonitor(), nil, nil)

	tests := []struct {
		name   string
		query  string
		agents []string
	}{
		{"default limit", "", []string{"price-detective", "receipt", "warranty", "receipt"}},
		{"limited", "?limit=2", []string{"price-detective", "receipt"}},
		{"by agent", "?agent=receipt", []string{"receipt", "receipt"}},
		{"by agent limited", "?agent=receipt&limit=1", []string{"receipt"}},
		{"bad limit falls back", "?limit=abc", []string{"price-detective", "receipt", "warranty", "receipt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/v1/executions"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var got []observability.ExecutionMetric
			decodeEnvelope(t, w.Body, &got)
			names := make([]string, len(got))
			for i, m := range got {
				names[i] = m.AgentName
			}
			assert.Equal(t, tt.agents, names)
		})
	}
}

func TestExecutionHandler_Stats(t *testing.T) {
	h := NewExecutionHandler(seededMonitor(), nil, nil)

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/v1/executions/stats", nil))
	var all observability.Stats
	decodeEnvelope(t, w.Body, &all)
	assert.Equal(t, 4, all.TotalExecutions)
	assert.Equal(t, 1, all.Failed)
	assert.Equal(t, 4, all.ToolUsage["get_receipt"])

	w = httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/v1/executions/stats?agent=receipt", nil))
	var one observability.Stats
	decodeEnvelope(t, w.Body, &one)
	assert.Equal(t, 2, one.TotalExecutions)
	assert.Equal(t, 2, one.Successful)
}

func TestExecutionHandler_Stream(t *testing.T) {
	monitor := observability.NewMonitor(10)
	h := NewExecutionHandler(monitor, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?agent=warranty"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	// 订阅在升级之后才建立，持续写入直到客户端收到
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				monitor.Record(observability.ExecutionMetric{AgentName: "receipt", State: "COMPLETE", Success: true})
				monitor.Record(observability.ExecutionMetric{AgentName: "warranty", State: "FAILED", Error: "boom"})
			}
		}
	}()

	var got observability.ExecutionMetric
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "warranty", got.AgentName)
	assert.Equal(t, "FAILED", got.State)
	assert.Equal(t, "boom", got.Error)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestExecutionHandler_StreamRejectsPlainHTTP(t *testing.T) {
	h := NewExecutionHandler(observability.NewMonitor(1), nil, nil)
	w := httptest.NewRecorder()
	h.HandleStream(w, httptest.NewRequest(http.MethodGet, "/v1/executions/stream", nil))
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}

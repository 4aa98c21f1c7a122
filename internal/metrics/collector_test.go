package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/observability"
)

var (
	_ observability.Reporter = (*Collector)(nil)
	_ agent.CacheRecorder    = (*Collector)(nil)
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/v1/executions", 200, 100*time.Millisecond, 1024)
	c.RecordHTTPRequest("GET", "/v1/executions", 204, 50*time.Millisecond, 0)
	c.RecordHTTPRequest("POST", "/v1/agents/{name}/execute", 503, time.Second, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/v1/executions", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/agents/{name}/execute", "5xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_RecordAgentExecution(t *testing.T) {
	c := newTestCollector(t)

	c.RecordAgentExecution("warranty", "COMPLETE", true, 3, 420, 0.012, 2*time.Second)
	c.RecordAgentExecution("warranty", "EXHAUSTED", false, 10, 900, 0.03, 9*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentExecutionsTotal.WithLabelValues("warranty", "COMPLETE", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentExecutionsTotal.WithLabelValues("warranty", "EXHAUSTED", "error")))
	assert.InDelta(t, 0.042, testutil.ToFloat64(c.agentCost.WithLabelValues("warranty")), 1e-9)
}

func TestCollector_RecordModelRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordModelRequest("receipt", "claude-sonnet-4", "success", 100, 50, 500*time.Millisecond)
	c.RecordModelRequest("receipt", "claude-sonnet-4", "rate_limited", 0, 0, 10*time.Millisecond)

	assert.Equal(t, 100.0, testutil.ToFloat64(c.modelTokens.WithLabelValues("receipt", "claude-sonnet-4", "input")))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.modelTokens.WithLabelValues("receipt", "claude-sonnet-4", "output")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.modelRequestsTotal))
}

func TestCollector_RecordToolCall(t *testing.T) {
	c := newTestCollector(t)

	c.RecordToolCall("price-detective", "check_price", true, 80*time.Millisecond)
	c.RecordToolCall("price-detective", "check_price", false, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("price-detective", "check_price", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("price-detective", "check_price", "error")))
}

func TestCollector_CacheAndDB(t *testing.T) {
	c := newTestCollector(t)

	c.RecordCacheHit("agent")
	c.RecordCacheHit("agent")
	c.RecordCacheMiss("agent")
	c.RecordDBConnections("postgres", 3, 7)
	c.RecordDBQuery("postgres", "query", nil, 5*time.Millisecond)
	c.RecordDBQuery("postgres", "create", errors.New("duplicate key"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("agent")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.dbConnections.WithLabelValues("postgres", "idle")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.dbQueryDuration))
}

func TestCollector_RecordSweep(t *testing.T) {
	c := newTestCollector(t)

	c.RecordSweep(nil, 5, 1, 2, 3, time.Minute)
	c.RecordSweep(errors.New("sweep already running"), 0, 0, 0, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweepRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweepRuns.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sweepPurchases.WithLabelValues("claimable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sweepPurchases.WithLabelValues("skipped")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("arvalo", nil, nil)
	c.RecordCacheHit("agent")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), `arvalo_cache_hits_total{cache="agent"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 502: "5xx", 101: "101"}
	for status, want := range tests {
		assert.Equal(t, want, statusClass(status))
	}
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/arvalo/arvalo/agent/observability"
	"github.com/arvalo/arvalo/agent/specialists"
	"github.com/arvalo/arvalo/api"
	"github.com/arvalo/arvalo/api/handlers"
	"github.com/arvalo/arvalo/config"
	"github.com/arvalo/arvalo/testutil/mocks"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, provider *mocks.ScriptedProvider) (*httptest.Server, *App) {
	t.Helper()
	app := newTestApp(t, provider)

	health := handlers.NewHealthHandler("test", zap.NewNop())
	health.RegisterCheck(handlers.NewPingCheck("database", app.Pool.Ping))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srvCfg := config.DefaultServerConfig()
	srvCfg.RateLimitRPS = 0
	router := newRouter(ctx, routerDeps{
		Health:       health,
		Agents:       app.Agents,
		Orchestrator: app.Orchestrator,
		Monitor:      app.Monitor,
		Metrics:      app.Metrics,
		Server:       srvCfg,
		Logger:       zap.NewNop(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, app
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestRouter_HealthAndErrors(t *testing.T) {
	srv, _ := newTestServer(t, mocks.NewScriptedProvider())

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/agents/warranty/execute", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouter_ExecuteAgentAndInspect(t *testing.T) {
	provider := mocks.NewScriptedProvider().Then(mocks.TextResponse(`{"covered":true}`, 12, 8))
	srv, app := newTestServer(t, provider)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/agents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 5)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/agents/"+specialists.NameWarranty+"/execute", `{"prompt":"is my laptop covered?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "COMPLETE", data["state"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/executions?agent="+specialists.NameWarranty, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, 1, app.Monitor.Len())

	// 指标按路由模板聚合
	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/v1/agents/{name}/execute"`)
	assert.Contains(t, string(raw), "arvalo_agent_executions_total")
}

func TestRouter_ExecutionStreamThroughMiddleware(t *testing.T) {
	srv, app := newTestServer(t, mocks.NewScriptedProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/executions/stream", nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				app.Monitor.Record(observability.ExecutionMetric{AgentName: specialists.NameReceipt, State: "COMPLETE", Success: true})
			}
		}
	}()

	var got observability.ExecutionMetric
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, specialists.NameReceipt, got.AgentName)
}

func TestServerConfig(t *testing.T) {
	sc := serverConfig(config.ServerConfig{HTTPPort: 9090, ReadTimeout: 2 * time.Second})
	assert.Equal(t, ":9090", sc.Addr)
	assert.Equal(t, 2*time.Second, sc.ReadTimeout)
	assert.NotZero(t, sc.WriteTimeout)
	assert.NotZero(t, sc.ShutdownTimeout)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"app.arvalo.dev", "localhost:3000"},
		originPatterns([]string{"https://app.arvalo.dev", "http://localhost:3000", ""}),
	)
}

// 路由与内嵌 OpenAPI 文档必须一一对应
func TestRouter_MatchesOpenAPIDocument(t *testing.T) {
	doc, err := api.Load(context.Background())
	require.NoError(t, err)

	srv, _ := newTestServer(t, mocks.NewScriptedProvider())
	routes, ok := srv.Config.Handler.(chi.Routes)
	require.True(t, ok)

	var registered []string
	require.NoError(t, chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		registered = append(registered, method+" "+route)
		return nil
	}))
	sort.Strings(registered)

	assert.Equal(t, api.Operations(doc), registered)
}

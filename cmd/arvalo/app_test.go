package main

import (
	"context"
	"testing"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/specialists"
	"github.com/arvalo/arvalo/config"
	"github.com/arvalo/arvalo/testutil/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testConfig 内存 sqlite + 内存缓存，不访问外部服务
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"
	// :memory: 每个连接是独立的数据库
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	cfg.Database.AutoMigrate = true
	cfg.Cache.Enabled = true
	cfg.Cache.Backend = "memory"
	cfg.LLM.TokenEncoding = ""
	cfg.Telemetry.Enabled = false
	cfg.Sweep.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, provider *mocks.ScriptedProvider) *App {
	t.Helper()
	app, err := buildApp(context.Background(), testConfig(), zap.NewNop(),
		withProvider(provider),
		withRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestBuildApp_WiresAllComponents(t *testing.T) {
	app := newTestApp(t, mocks.NewScriptedProvider())

	assert.Equal(t, []string{
		specialists.NameReceipt,
		specialists.NameReturnPolicy,
		specialists.NamePriceDetective,
		specialists.NameRecurrentOptimizer,
		specialists.NameWarranty,
	}, app.Agents.Names())
	require.NotNil(t, app.Cache)
	require.NoError(t, app.Pool.Ping(context.Background()))
	require.NoError(t, app.Cache.Ping(context.Background()))
	assert.NotNil(t, app.Orchestrator)
	assert.NotNil(t, app.Sweeper)
	assert.False(t, app.Telemetry.Enabled())

	// 迁移已执行
	var count int64
	require.NoError(t, app.DB.Table("purchases").Count(&count).Error)
	assert.Zero(t, count)
}

func TestBuildApp_CachedExecutionIsObserved(t *testing.T) {
	provider := mocks.NewScriptedProvider().Then(mocks.TextResponse(`{"status":"registered"}`, 30, 10))
	app := newTestApp(t, provider)

	exec, ok := app.Agents.Get(specialists.NameWarranty)
	require.True(t, ok)

	in := agent.Input{Prompt: "register warranty", UserID: "u1"}
	first := exec.Execute(context.Background(), in)
	require.True(t, first.Success, first.Error)
	assert.False(t, first.Cached)

	second := exec.Execute(context.Background(), in)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, provider.Calls())

	recent := app.Monitor.Recent(0)
	require.NotEmpty(t, recent)
	assert.Equal(t, specialists.NameWarranty, recent[0].AgentName)
	assert.Equal(t, 40, recent[0].TokensUsed)
}

func TestBuildApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "oracle" }},
		{"unknown cache backend", func(c *config.Config) { c.Cache.Backend = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := buildApp(context.Background(), cfg, zap.NewNop(),
				withProvider(mocks.NewScriptedProvider()),
				withRegistry(prometheus.NewRegistry()),
			)
			assert.Error(t, err)
		})
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"anthropic", "openai"} {
		p, err := newProvider(config.LLMConfig{Provider: name, APIKey: "k", Model: "m"}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := newProvider(config.LLMConfig{Provider: "cohere"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewToolDeps_OptionalTools(t *testing.T) {
	deps := newToolDeps(config.SearchConfig{}, nil, zap.NewNop())
	assert.Nil(t, deps.Searcher)
	assert.Nil(t, deps.Prices)

	deps = newToolDeps(config.SearchConfig{Endpoint: "http://search.local", PriceCheckEnabled: true}, nil, zap.NewNop())
	assert.NotNil(t, deps.Searcher)
	assert.NotNil(t, deps.Prices)
}

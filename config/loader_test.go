// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Agent.MaxParallel)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1000, cfg.Monitor.Capacity)
	assert.Equal(t, "@every 6h", cfg.Sweep.Schedule)
	assert.Equal(t, 60*24*time.Hour, cfg.Sweep.Lookback)
	assert.Equal(t, "arvalo", cfg.Telemetry.MetricsNamespace)

	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvPrefix("ARVALO_TEST_NONE").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
agent:
  max_iterations: 6
  strict_answers: true
llm:
  provider: openai
  model: gpt-4o
  prices:
    - model: gpt-4o
      price_input: 0.0025
      price_output: 0.01
database:
  driver: postgres
  name: purchases
sweep:
  enabled: true
  schedule: "0 */4 * * *"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvPrefix("ARVALO_TEST_NONE").Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.True(t, cfg.Agent.StrictAnswers)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	require.Len(t, cfg.LLM.Prices, 1)
	assert.Equal(t, 0.01, cfg.LLM.Prices[0].PriceOutput)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "0 */4 * * *", cfg.Sweep.Schedule)
	// 未出现的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnvPrefix("ARVALO_TEST_NONE").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0o644))

	t.Setenv("ARVALOT_SERVER_HTTP_PORT", "9999")
	t.Setenv("ARVALOT_AGENT_MODEL_TIMEOUT", "45s")
	t.Setenv("ARVALOT_AGENT_TEMPERATURE", "0.5")
	t.Setenv("ARVALOT_CACHE_ENABLED", "false")
	t.Setenv("ARVALOT_SERVER_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ARVALOT_LLM_API_KEY", "sk-test")

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvPrefix("ARVALOT").Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Agent.ModelTimeout)
	assert.Equal(t, 0.5, cfg.Agent.Temperature)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("ARVALOT_SERVER_HTTP_PORT", "eighty")

	_, err := NewLoader().WithEnvPrefix("ARVALOT").Load()
	assert.ErrorContains(t, err, "ARVALOT_SERVER_HTTP_PORT")
}

func TestLoader_DotEnv(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ARVALOD_LLM_MODEL=claude-3-5-haiku\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ARVALOD_LLM_MODEL") })

	cfg, err := NewLoader().WithEnvPrefix("ARVALOD").
		WithDotEnv(envPath, filepath.Join(t.TempDir(), "missing.env")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku", cfg.LLM.Model)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithEnvPrefix("ARVALO_TEST_NONE").WithValidator(func(c *Config) error {
		if c.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

// --- Validate ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid HTTP port"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"temperature", func(c *Config) { c.Agent.Temperature = 3 }, "temperature"},
		{"provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"sweep schedule", func(c *Config) { c.Sweep.Enabled = true; c.Sweep.Schedule = "" }, "sweep.schedule"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?parseTime=true&multiStatements=true", my.DSN())

	assert.Equal(t, "file.db", (&DatabaseConfig{Driver: "sqlite", Name: "file.db"}).DSN())
	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}

func TestConfig_Redacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Database.Password = "hunter2"

	r := cfg.Redacted()
	assert.Equal(t, "***", r.LLM.APIKey)
	assert.Equal(t, "***", r.Database.Password)
	assert.Empty(t, r.Redis.Password)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

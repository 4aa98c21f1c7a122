// =============================================================================
// 📦 Arvalo 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		LLM:       DefaultLLMConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Monitor:   MonitorConfig{Capacity: 1000},
		Sweep:     DefaultSweepConfig(),
		Search:    DefaultSearchConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:    10,
		MaxTokens:        4096,
		Temperature:      0.2,
		ModelTimeout:     60 * time.Second,
		ExecutionTimeout: 3 * time.Minute,
		MaxParallel:      3,
	}
}

// DefaultLLMConfig 返回默认模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-20250514",
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		PoolSize: 10,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		Backend:    "memory",
		TTL:        30 * time.Minute,
		MaxEntries: 1000,
		KeyPrefix:  "arvalo:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "sqlite",
		Host:                "localhost",
		Port:                5432,
		User:                "arvalo",
		Name:                "arvalo.db",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint:     "localhost:4317",
		ServiceName:      "arvalo",
		SampleRate:       0.1,
		MetricsNamespace: "arvalo",
	}
}

// DefaultSweepConfig 返回默认巡检配置
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Schedule:         "@every 6h",
		Lookback:         60 * 24 * time.Hour,
		DefaultClaimDays: 30,
		Limit:            200,
		Concurrency:      4,
	}
}

// DefaultSearchConfig 返回默认外部访问配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RateLimit:         2,
		Timeout:           15 * time.Second,
		PriceCheckEnabled: true,
		PerHostRate:       1,
		UserAgent:         "arvalo-price-checker/1.0",
	}
}

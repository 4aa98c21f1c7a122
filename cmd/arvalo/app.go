package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/observability"
	"github.com/arvalo/arvalo/agent/specialists"
	"github.com/arvalo/arvalo/config"
	"github.com/arvalo/arvalo/internal/cache"
	"github.com/arvalo/arvalo/internal/database"
	"github.com/arvalo/arvalo/internal/metrics"
	"github.com/arvalo/arvalo/internal/migration"
	"github.com/arvalo/arvalo/internal/telemetry"
	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/llm/pricing"
	"github.com/arvalo/arvalo/llm/providers/anthropic"
	"github.com/arvalo/arvalo/llm/providers/openai"
	"github.com/arvalo/arvalo/llm/retry"
	"github.com/arvalo/arvalo/llm/tokenizer"
	"github.com/arvalo/arvalo/store"
	"github.com/arvalo/arvalo/tools"
	"github.com/arvalo/arvalo/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🧩 组合根
// =============================================================================

// App 进程内全部组件，由 buildApp 组装
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB        *gorm.DB
	Pool      *database.PoolManager
	Repo      *store.Repository
	Cache     cache.Store // 结果缓存关闭时为 nil
	Metrics   *metrics.Collector
	Monitor   *observability.Monitor
	Telemetry *telemetry.Providers

	Agents       *specialists.Set
	Orchestrator *workflow.Orchestrator
	Sweeper      *workflow.Sweeper
}

type appOptions struct {
	provider llm.Provider
	registry prometheus.Registerer
}

// appOption 覆盖组合根中的外部依赖（测试用）
type appOption func(*appOptions)

func withProvider(p llm.Provider) appOption {
	return func(o *appOptions) { o.provider = p }
}

func withRegistry(reg prometheus.Registerer) appOption {
	return func(o *appOptions) { o.registry = reg }
}

// buildApp 按依赖顺序构建组件。失败时已创建的资源会被释放。
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (_ *App, err error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.Metrics = metrics.NewCollector(cfg.Telemetry.MetricsNamespace, o.registry, logger)

	// 存储
	if app.DB, err = store.Open(cfg.Database.Driver, cfg.Database.DSN(), logger); err != nil {
		return nil, err
	}
	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	if cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.HealthCheckInterval > 0 {
		poolCfg.HealthCheckInterval = cfg.Database.HealthCheckInterval
	}
	if app.Pool, err = database.NewPoolManager(app.DB, poolCfg, logger, database.WithRecorder(cfg.Database.Driver, app.Metrics)); err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err = migrateUp(ctx, app.DB, logger); err != nil {
			return nil, err
		}
	}
	app.Repo = store.NewRepository(app.DB)
	app.Repo.UseTransactor(app.Pool.Transact)

	// 结果缓存
	if cfg.Cache.Enabled {
		if app.Cache, err = newCacheStore(cfg, logger); err != nil {
			return nil, err
		}
	}

	// 观测
	app.Monitor = observability.NewMonitor(cfg.Monitor.Capacity,
		observability.WithReporter(app.Metrics),
		observability.WithLogger(logger),
	)
	if app.Telemetry, err = telemetry.Init(ctx, cfg.Telemetry, Version, logger); err != nil {
		logger.Warn("telemetry unavailable, continuing without tracing", zap.Error(err))
		app.Telemetry, err = &telemetry.Providers{}, nil
	}

	// 模型
	provider := o.provider
	if provider == nil {
		if provider, err = newProvider(cfg.LLM, logger); err != nil {
			return nil, err
		}
	}

	// Agent 与编排
	catalog := tools.NewCatalog(newToolDeps(cfg.Search, app.Repo, logger))
	deps := specialists.Deps{
		Provider: provider,
		Catalog:  catalog,
		Tuning: specialists.Tuning{
			Model:            cfg.LLM.Model,
			MaxIterations:    cfg.Agent.MaxIterations,
			MaxTokens:        cfg.Agent.MaxTokens,
			Temperature:      cfg.Agent.Temperature,
			ModelTimeout:     cfg.Agent.ModelTimeout,
			ExecutionTimeout: cfg.Agent.ExecutionTimeout,
		},
		StrictAnswers: cfg.Agent.StrictAnswers,
		Options: []agent.Option{
			agent.WithRetryPolicy(newRetryPolicy(cfg.LLM, logger)),
			agent.WithPricing(newRateCard(cfg.LLM).Func()),
			agent.WithTokenCounter(newTokenCounter(cfg.LLM.TokenEncoding)),
			agent.WithObserver(app.Monitor),
			agent.WithTracer(app.Telemetry.Tracer("github.com/arvalo/arvalo/agent")),
		},
		Logger: logger,
	}
	if app.Cache != nil {
		resultCache, ttl, rec := app.Cache, cfg.Cache.TTL, app.Metrics
		deps.Wrap = func(e agent.Executor) agent.Executor {
			return agent.NewCachedAgent(e, resultCache, ttl, rec, logger)
		}
	}
	if app.Agents, err = specialists.NewSet(deps); err != nil {
		return nil, fmt.Errorf("build agents: %w", err)
	}

	app.Orchestrator = workflow.NewOrchestrator(workflow.AgentsFromSet(app.Agents), workflow.Options{
		MaxParallel: cfg.Agent.MaxParallel,
		Logger:      logger,
		Tracer:      app.Telemetry.Tracer("github.com/arvalo/arvalo/workflow"),
	})
	app.Sweeper = workflow.NewSweeper(app.Repo, app.Agents.PriceDetective, workflow.SweepConfig{
		Lookback:         cfg.Sweep.Lookback,
		DefaultClaimDays: cfg.Sweep.DefaultClaimDays,
		Limit:            cfg.Sweep.Limit,
		Concurrency:      cfg.Sweep.Concurrency,
	}, logger)

	logger.Info("application assembled",
		zap.String("llm_provider", provider.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("cache", app.Cache != nil),
		zap.Bool("tracing", app.Telemetry.Enabled()),
		zap.Strings("tools", catalog.Names()),
	)
	return app, nil
}

// Close 按构建的逆序释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Pool != nil {
		errs = append(errs, a.Pool.Close())
	} else if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 组件构造
// =============================================================================

func migrateUp(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromGorm(db, logger)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func newCacheStore(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		cc := cache.DefaultConfig()
		cc.Addr = cfg.Redis.Addr
		cc.Password = cfg.Redis.Password
		cc.DB = cfg.Redis.DB
		cc.TLS = cfg.Redis.TLS
		cc.KeyPrefix = cfg.Cache.KeyPrefix
		cc.DefaultTTL = cfg.Cache.TTL
		if cfg.Redis.PoolSize > 0 {
			cc.PoolSize = cfg.Redis.PoolSize
		}
		m, err := cache.NewManager(cc, logger)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return m, nil
	case "memory":
		return cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Cache.Backend)
	}
}

func newProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, logger), nil
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newRetryPolicy(cfg config.LLMConfig, logger *zap.Logger) *retry.RetryPolicy {
	p := retry.DefaultRetryPolicy()
	p.MaxRetries = cfg.MaxRetries
	if cfg.InitialDelay > 0 {
		p.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying model call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return p
}

// newRateCard 配置了统一费率时以它为回退，否则使用内置价目表；配置的模型价格覆盖内置项
func newRateCard(cfg config.LLMConfig) *pricing.RateCard {
	if cfg.BlendedRate > 0 {
		return pricing.NewRateCard(pricing.Blended(cfg.BlendedRate), cfg.Prices...)
	}
	card := pricing.DefaultRateCard()
	for _, p := range cfg.Prices {
		card.Set(p)
	}
	return card
}

func newTokenCounter(encoding string) tokenizer.Counter {
	if encoding == "" {
		return tokenizer.NewEstimatorCounter()
	}
	return tokenizer.NewTiktokenCounter(encoding)
}

// newToolDeps 未配置搜索端点时不注册 web_search，关闭价格抓取时不注册 check_price
func newToolDeps(cfg config.SearchConfig, repo *store.Repository, logger *zap.Logger) tools.Deps {
	deps := tools.Deps{
		Repo:            repo,
		Logger:          logger,
		SearchRateLimit: cfg.RateLimit,
		FetchTimeout:    cfg.Timeout,
	}
	if cfg.Endpoint != "" {
		deps.Searcher = tools.NewHTTPSearcher(tools.HTTPSearcherConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		})
	}
	if cfg.PriceCheckEnabled {
		deps.Prices = tools.NewHTTPPriceChecker(tools.HTTPPriceCheckerConfig{
			Timeout:     cfg.Timeout,
			PerHostRate: cfg.PerHostRate,
			UserAgent:   cfg.UserAgent,
		})
	}
	return deps
}

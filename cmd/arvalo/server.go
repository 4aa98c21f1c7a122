package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arvalo/arvalo/api"
	"github.com/arvalo/arvalo/api/handlers"
	"github.com/arvalo/arvalo/config"
	"github.com/arvalo/arvalo/internal/server"
	"github.com/arvalo/arvalo/types"
	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the scheduled price-drop sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, level := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, loader, logger, level)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, loader *config.Loader, logger *zap.Logger, level zap.AtomicLevel) error {
	logger.Info("starting Arvalo",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	logger.Debug("effective config", zap.Any("config", cfg.Redacted()))

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	health := handlers.NewHealthHandler(Version, logger)
	health.RegisterCheck(handlers.NewPingCheck("database", app.Pool.Ping))
	if app.Cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("cache", app.Cache.Ping))
	}

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	router := newRouter(routerCtx, routerDeps{
		Health:       health,
		Agents:       app.Agents,
		Orchestrator: app.Orchestrator,
		Monitor:      app.Monitor,
		Metrics:      app.Metrics,
		Tracer:       app.Telemetry.Tracer("github.com/arvalo/arvalo/http"),
		Server:       cfg.Server,
		Logger:       logger,
	})

	srv := server.NewManager(router, serverConfig(cfg.Server), logger)
	// 钩子逆序执行：先停调度与重载，最后释放存储与遥测
	srv.OnShutdown(func(ctx context.Context) error { return app.Close(ctx) })
	srv.OnShutdown(func(context.Context) error { cancelRouter(); return nil })

	reloader := config.NewReloader(loader, cfg, logger)
	reloader.OnReload(func(_, next *config.Config) {
		level.SetLevel(parseLevel(next.Log.Level))
	})
	if err := reloader.Watch(ctx); err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	}
	srv.OnShutdown(func(context.Context) error { reloader.Stop(); return nil })

	if cfg.Sweep.Enabled {
		c := newCron(logger)
		if _, err := scheduleSweep(ctx, c, app.Sweeper, cfg.Sweep.Schedule, app.Metrics, logger); err != nil {
			_ = srv.Shutdown(context.Background())
			return err
		}
		c.Start()
		srv.OnShutdown(func(ctx context.Context) error { return stopCron(ctx, c) })
		logger.Info("price-drop sweep scheduled", zap.String("schedule", cfg.Sweep.Schedule))
	}

	return srv.Run(ctx)
}

func serverConfig(cfg config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	sc.Addr = fmt.Sprintf(":%d", cfg.HTTPPort)
	if cfg.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return sc
}

// stopCron 停止调度并等待正在运行的巡检结束
func stopCron(ctx context.Context, c *cron.Cron) error {
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweep still running at shutdown: %w", ctx.Err())
	}
}

// =============================================================================
// 🛣️ 路由
// =============================================================================

// metricsExporter metrics.Collector 在路由层用到的部分
type metricsExporter interface {
	httpRecorder
	Handler() http.Handler
}

type routerDeps struct {
	Health       *handlers.HealthHandler
	Agents       handlers.AgentDirectory
	Orchestrator handlers.Orchestrator
	Monitor      handlers.ExecutionMonitor
	Metrics      metricsExporter
	Tracer       trace.Tracer
	Server       config.ServerConfig
	Logger       *zap.Logger
}

// newRouter 组装 HTTP 路由。ctx 结束时停止限流器的后台清理。
func newRouter(ctx context.Context, d routerDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	agentHandler := handlers.NewAgentHandler(d.Agents, logger)
	workflowHandler := handlers.NewWorkflowHandler(d.Orchestrator, d.Agents, logger)
	executionHandler := handlers.NewExecutionHandler(d.Monitor, originPatterns(d.Server.AllowedOrigins), logger)

	r := chi.NewRouter()
	r.Use(
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		CORS(d.Server.AllowedOrigins),
		OTelTracing(d.Tracer),
		Metrics(d.Metrics),
		RequestLogger(logger),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
	})

	r.Get("/health", d.Health.HandleHealth)
	r.Get("/ready", d.Health.HandleReady)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	r.Method(http.MethodGet, "/openapi.yaml", api.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(
			RateLimiter(ctx, d.Server.RateLimitRPS, d.Server.RateLimitBurst, logger),
			MaxBodyBytes(d.Server.MaxBodyBytes),
		)

		r.Get("/agents", agentHandler.HandleList)
		r.Post("/agents/{name}/execute", agentHandler.HandleExecute)

		r.Post("/purchases/{id}/analyze", workflowHandler.HandleAnalyzePurchase)
		r.Post("/workflows/receipt-to-warranty", workflowHandler.HandleReceiptToWarranty)
		r.Post("/workflows/parallel", workflowHandler.HandleParallel)
		r.Post("/workflows/sequential", workflowHandler.HandleSequential)

		r.Get("/executions", executionHandler.HandleRecent)
		r.Get("/executions/stats", executionHandler.HandleStats)
		r.Get("/executions/stream", executionHandler.HandleStream)
	})
	return r
}

// originPatterns 把 CORS 来源转换为 websocket 的 host 匹配模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

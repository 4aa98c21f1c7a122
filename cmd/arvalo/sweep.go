package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arvalo/arvalo/workflow"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// ⏰ 降价巡检
// =============================================================================

type sweepRunner interface {
	Run(ctx context.Context) (*workflow.SweepReport, error)
}

type sweepRecorder interface {
	RecordSweep(err error, checked, failed, claimable, skipped int, d time.Duration)
}

// runSweepOnce 执行一次巡检并上报指标。上一次尚未结束时跳过且不计入指标。
func runSweepOnce(ctx context.Context, sw sweepRunner, rec sweepRecorder, logger *zap.Logger) (*workflow.SweepReport, error) {
	start := time.Now()
	report, err := sw.Run(ctx)
	if errors.Is(err, workflow.ErrSweepRunning) {
		logger.Info("previous sweep still running, skipping")
		return nil, err
	}

	d := time.Since(start)
	if err != nil {
		rec.RecordSweep(err, 0, 0, 0, 0, d)
		logger.Error("price-drop sweep failed", zap.Error(err), zap.Duration("duration", d))
		return nil, err
	}
	rec.RecordSweep(nil, report.Checked, report.Failed, len(report.Claimable), report.Skipped, d)
	logger.Info("price-drop sweep finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("checked", report.Checked),
		zap.Int("failed", report.Failed),
		zap.Int("claimable", len(report.Claimable)),
		zap.Float64("cost", report.Cost),
		zap.Duration("duration", d),
	)
	return report, nil
}

// cronLogger 把 cron 的日志接口接到 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

func newCron(logger *zap.Logger) *cron.Cron {
	lg := cronLogger{sugar: logger.With(zap.String("component", "cron")).Sugar()}
	return cron.New(
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)
}

// scheduleSweep 按 schedule（标准 5 段 cron 或 @every 描述符）注册巡检任务
func scheduleSweep(ctx context.Context, c *cron.Cron, sw sweepRunner, schedule string, rec sweepRecorder, logger *zap.Logger) (cron.EntryID, error) {
	id, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = runSweepOnce(ctx, sw, rec, logger)
	})
	if err != nil {
		return 0, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return id, nil
}

// =============================================================================
// 🧹 sweep 命令
// =============================================================================

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the price-drop sweep once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				report, err := runSweepOnce(ctx, app.Sweeper, app.Metrics, app.Logger)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

// withApp 为一次性命令构建应用，日志写到 stderr，结束后释放资源
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *App) error) error {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Sweep.Enabled = false
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	}()
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/specialists"
	"github.com/arvalo/arvalo/internal/pool"
	"github.com/arvalo/arvalo/store"
	"go.uber.org/zap"
)

// SweepConfig 降价巡检配置
type SweepConfig struct {
	// Lookback 只检查该时间窗口内的购买
	Lookback time.Duration
	// DefaultClaimDays 商家未登记价保天数时使用的默认值
	DefaultClaimDays int
	// Limit 单次巡检最多检查的购买数
	Limit int
	// Concurrency 同时运行的 price-detective 数
	Concurrency int
}

// DefaultSweepConfig 默认巡检配置
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Lookback:         60 * 24 * time.Hour,
		DefaultClaimDays: 30,
		Limit:            200,
		Concurrency:      4,
	}
}

// SweepHit 发现的可申请降价
type SweepHit struct {
	PurchaseID string `json:"purchase_id"`
	UserID     string `json:"user_id"`
	Merchant   string `json:"merchant"`
	Answer     any    `json:"answer"`
}

// SweepReport 一次巡检的汇总
type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Skipped    int           `json:"skipped"`
	Checked    int           `json:"checked"`
	Failed     int           `json:"failed"`
	Claimable  []SweepHit    `json:"claimable"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	Pool       pool.Stats    `json:"pool"`
}

// Sweeper 对仍在价保期内的购买批量运行 price-detective
type Sweeper struct {
	repo     *store.Repository
	detector Executor
	cfg      SweepConfig
	logger   *zap.Logger
	now      func() time.Time

	// running 防止同一进程内巡检重叠
	running sync.Mutex
}

// NewSweeper 创建巡检器
func NewSweeper(repo *store.Repository, detector Executor, cfg SweepConfig, logger *zap.Logger) *Sweeper {
	def := DefaultSweepConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.DefaultClaimDays <= 0 {
		cfg.DefaultClaimDays = def.DefaultClaimDays
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		repo:     repo,
		detector: detector,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "sweeper")),
		now:      time.Now,
	}
}

// ErrSweepRunning 上一次巡检尚未结束
var ErrSweepRunning = errors.New("sweep already running")

// Run 执行一次巡检。只有候选列表查询失败或巡检重叠时返回 error。
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.running.Unlock()

	now := s.now()
	report := &SweepReport{StartedAt: now, Claimable: []SweepHit{}}

	candidates, err := s.repo.PurchasesForSweep(ctx, now.Add(-s.cfg.Lookback), s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	report.Candidates = len(candidates)

	due := s.claimable(ctx, candidates, now)
	report.Skipped = len(candidates) - len(due)

	var mu sync.Mutex
	wp := pool.New(pool.Config{Workers: s.cfg.Concurrency})
	for _, p := range due {
		err := wp.Submit(ctx, func(ctx context.Context) error {
			res := s.check(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			report.TokensUsed += res.TokensUsed
			report.Cost += res.Cost
			if !res.Success {
				report.Failed++
				return errors.New(res.Error)
			}
			if isClaimable(res.Data) {
				report.Claimable = append(report.Claimable, SweepHit{
					PurchaseID: p.ID, UserID: p.UserID, Merchant: p.Merchant, Answer: res.Data,
				})
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("sweep interrupted", zap.Error(err))
			break
		}
	}
	wp.Wait()
	wp.Close()

	report.Pool = wp.Stats()
	report.Duration = time.Since(now)
	s.logger.Info("price-drop sweep finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("checked", report.Checked),
		zap.Int("failed", report.Failed),
		zap.Int("claimable", len(report.Claimable)),
		zap.Float64("cost", report.Cost),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *Sweeper) check(ctx context.Context, p store.Purchase) (res *agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = agent.FailedResult(executorName(s.detector), agent.ErrorKindInternal, fmt.Sprintf("price check panicked: %v", r))
		}
	}()
	res = s.detector.Execute(ctx, specialists.PriceDropInput(p.ID, p.UserID))
	if res == nil {
		res = agent.FailedResult(executorName(s.detector), agent.ErrorKindInternal, "no result")
	}
	return res
}

// claimable 过滤出仍在价保期内的购买。商家登记了政策但不支持价保（PriceMatchDays 为 0）时跳过。
func (s *Sweeper) claimable(ctx context.Context, purchases []store.Purchase, now time.Time) []store.Purchase {
	windows := make(map[string]int)
	out := make([]store.Purchase, 0, len(purchases))
	for _, p := range purchases {
		key := store.NormalizeMerchant(p.Merchant)
		days, ok := windows[key]
		if !ok {
			days = s.cfg.DefaultClaimDays
			policy, err := s.repo.GetMerchantPolicy(ctx, p.Merchant)
			switch {
			case err == nil:
				days = policy.PriceMatchDays
			case !errors.Is(err, store.ErrNotFound):
				s.logger.Warn("merchant policy lookup failed", zap.String("merchant", p.Merchant), zap.Error(err))
			}
			windows[key] = days
		}
		if days > 0 && !now.After(p.PurchaseDate.AddDate(0, 0, days)) {
			out = append(out, p)
		}
	}
	return out
}

func isClaimable(data any) bool {
	m, ok := data.(map[string]any)
	if !ok {
		return false
	}
	claimable, _ := m["claimable"].(bool)
	return claimable
}

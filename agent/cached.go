package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/arvalo/arvalo/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheRecorder 记录缓存命中情况，metrics.Collector 实现了该接口
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedAgent 为 Executor 增加结果缓存。只缓存成功结果；同一键的并发未命中合并为一次执行。
type CachedAgent struct {
	inner    Executor
	store    cache.Store
	ttl      time.Duration
	group    singleflight.Group
	recorder CacheRecorder
	logger   *zap.Logger
}

// NewCachedAgent 包装 inner。recorder 可以为 nil。
func NewCachedAgent(inner Executor, store cache.Store, ttl time.Duration, recorder CacheRecorder, logger *zap.Logger) *CachedAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedAgent{
		inner:    inner,
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger.With(zap.String("agent", inner.Name()), zap.String("component", "result_cache")),
	}
}

// Name implements Executor.
func (c *CachedAgent) Name() string { return c.inner.Name() }

// Execute implements Executor.
// 共享执行脱离首个调用方的取消，由内层 Agent 的 ExecutionTimeout 约束；每个调用方只在自己的 ctx 上等待。
func (c *CachedAgent) Execute(ctx context.Context, input Input) *Result {
	key, ok := CacheKey(c.inner.Name(), input)
	if !ok {
		c.logger.Debug("input context not serializable, bypassing result cache")
		return c.inner.Execute(ctx, input)
	}

	var cached Result
	err := cache.GetJSON(ctx, c.store, key, &cached)
	if err == nil {
		c.record(true)
		cached.Cached = true
		return &cached
	}
	c.record(false)
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("result cache read failed", zap.Error(err))
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		res := c.inner.Execute(shared, input)
		if res != nil && res.Success {
			if err := cache.SetJSON(shared, c.store, key, res, c.ttl); err != nil {
				c.logger.Warn("result cache write failed", zap.Error(err))
			}
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return FailedResult(c.inner.Name(), ErrorKindTimeout, "execution timed out: "+ctx.Err().Error())
		}
		return FailedResult(c.inner.Name(), ErrorKindCanceled, "execution canceled: "+ctx.Err().Error())
	case r := <-ch:
		res, _ := r.Val.(*Result)
		if res == nil {
			return FailedResult(c.inner.Name(), ErrorKindInternal, "executor returned no result")
		}
		// 共享结果的调用方各自拿到副本
		out := *res
		return &out
	}
}

// Invalidate 删除某个输入对应的缓存
func (c *CachedAgent) Invalidate(ctx context.Context, input Input) error {
	key, ok := CacheKey(c.inner.Name(), input)
	if !ok {
		return nil
	}
	return c.store.Delete(ctx, key)
}

func (c *CachedAgent) record(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit("agent_result")
	} else {
		c.recorder.RecordCacheMiss("agent_result")
	}
}

// CacheKey 由 Agent 名、提示、上下文、迭代上限与用户计算缓存键。上下文无法序列化时返回 false。
func CacheKey(agentName string, input Input) (string, bool) {
	// map 序列化按键排序，结果稳定
	ctxJSON, err := json.Marshal(input.Context)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(input.Prompt))
	h.Write([]byte{0})
	h.Write(ctxJSON)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(input.MaxIterations)))
	h.Write([]byte{0})
	h.Write([]byte(input.UserID))
	return "agent:" + agentName + ":" + hex.EncodeToString(h.Sum(nil)), true
}

package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadFunc 配置重载回调
type ReloadFunc func(old, new *Config)

// Reloader 配置文件变更后重新加载并校验，成功后替换当前配置。
// 只有回调自己读取的字段（如日志级别）会在运行期生效，连接类配置需要重启。
type Reloader struct {
	loader  *Loader
	current atomic.Pointer[Config]
	logger  *zap.Logger

	mu        sync.Mutex
	callbacks []ReloadFunc
	watcher   *FileWatcher
}

// NewReloader 创建重载器
func NewReloader(loader *Loader, initial *Config, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{loader: loader, logger: logger.With(zap.String("component", "config_reload"))}
	r.current.Store(initial)
	return r
}

// Current 返回当前配置
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload 注册回调
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Reload 立即重新加载。加载或校验失败时保留旧配置。
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		r.logger.Warn("config reload rejected", zap.Error(err))
		return err
	}
	old := r.current.Swap(next)

	r.mu.Lock()
	callbacks := append([]ReloadFunc(nil), r.callbacks...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		r.safeCall(cb, old, next)
	}
	r.logger.Info("config reloaded", zap.String("path", r.loader.ConfigPath()))
	return nil
}

func (r *Reloader) safeCall(cb ReloadFunc, old, next *Config) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("config reload callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(old, next)
}

// Watch 监听配置文件，变更时自动 Reload。没有配置文件时什么都不做。
func (r *Reloader) Watch(ctx context.Context, opts ...WatcherOption) error {
	path := r.loader.ConfigPath()
	if path == "" {
		return nil
	}
	opts = append([]WatcherOption{WithWatcherLogger(r.logger)}, opts...)
	w, err := NewFileWatcher(path, func(ev FileEvent) {
		if ev.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current config", zap.String("path", ev.Path))
			return
		}
		_ = r.Reload()
	}, opts...)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

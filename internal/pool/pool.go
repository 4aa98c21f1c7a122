// Package pool 提供固定上限的 goroutine 工作池，用于批量后台任务（例如降价巡检）。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed 工作池已关闭
	ErrPoolClosed = errors.New("pool is closed")
	// ErrTaskPanicked 任务 panic
	ErrTaskPanicked = errors.New("task panicked")
)

// Task 一个工作单元
type Task func(ctx context.Context) error

// Config 工作池配置
type Config struct {
	// Workers 并发 worker 数，<= 0 时为 1
	Workers int `json:"workers" yaml:"workers"`
	// QueueSize 等待队列长度，<= 0 时等于 Workers
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// OnError 任务失败（含 panic）时回调，可为 nil
	OnError func(err error) `json:"-" yaml:"-"`
}

// Pool 固定 worker 数的工作池。Submit 在队列满时阻塞，Wait 等待所有已提交任务完成。
type Pool struct {
	cfg   Config
	queue chan job

	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

type job struct {
	ctx  context.Context
	task Task
}

// New 创建并启动工作池
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	p := &Pool{cfg: cfg, queue: make(chan job, cfg.QueueSize)}
	for i := 0; i < cfg.Workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

// Submit 提交任务；队列满时阻塞直到有空位或 ctx 结束
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.queue <- job{ctx: ctx, task: task}:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	}
}

// Wait 等待所有已提交任务完成
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close 停止接收任务，等待队列清空后退出全部 worker
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.workers.Wait()
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for j := range p.queue {
		p.active.Add(1)
		err := p.execute(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			if p.cfg.OnError != nil {
				p.cfg.OnError(err)
			}
		} else {
			p.completed.Add(1)
		}
		p.pending.Done()
	}
}

func (p *Pool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.task(j.ctx)
}

// Stats 返回运行统计
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.cfg.Workers,
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Stats 工作池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

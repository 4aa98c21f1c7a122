package workflow

import (
	"context"
	"time"

	"github.com/arvalo/arvalo/agent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task 并行批次中的一个独立任务
type Task struct {
	Agent Executor
	Input agent.Input
}

// TaskResult 成功任务的结果
type TaskResult struct {
	Index  int           `json:"index"`
	Agent  string        `json:"agent"`
	Result *agent.Result `json:"result"`
}

// TaskError 失败任务
type TaskError struct {
	Index   int             `json:"index"`
	Agent   string          `json:"agent"`
	Message string          `json:"message"`
	Kind    agent.ErrorKind `json:"kind,omitempty"`
}

// ParallelResult 并行批次的结果
type ParallelResult struct {
	Success  bool          `json:"success"`
	Results  []TaskResult  `json:"results"`
	Errors   []TaskError   `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// ExecuteParallel 并发执行全部任务。任务之间互不取消，结果按任务下标排序。
func (o *Orchestrator) ExecuteParallel(ctx context.Context, tasks []Task) *ParallelResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "workflow.parallel")
	span.SetAttributes(attribute.Int("workflow.tasks", len(tasks)))
	defer span.End()

	outcomes := o.runAll(ctx, tasks)

	out := &ParallelResult{
		Results: make([]TaskResult, 0, len(tasks)),
		Errors:  []TaskError{},
	}
	for i, res := range outcomes {
		if res.Success {
			out.Results = append(out.Results, TaskResult{Index: i, Agent: res.Agent, Result: res})
			continue
		}
		out.Errors = append(out.Errors, TaskError{Index: i, Agent: res.Agent, Message: res.Error, Kind: res.ErrorKind})
	}
	out.Success = len(out.Errors) == 0
	out.Duration = time.Since(start)

	if !out.Success {
		span.SetStatus(codes.Error, "one or more tasks failed")
		o.logger.Warn("parallel batch finished with failures",
			zap.Int("tasks", len(tasks)),
			zap.Int("failed", len(out.Errors)),
		)
	}
	return out
}

// runAll 并发执行并按下标返回每个任务的结果
func (o *Orchestrator) runAll(ctx context.Context, tasks []Task) []*agent.Result {
	outcomes := make([]*agent.Result, len(tasks))

	// 不使用 errgroup.WithContext：一个任务失败不应取消其他任务
	var g errgroup.Group
	if o.opts.MaxParallel > 0 {
		g.SetLimit(o.opts.MaxParallel)
	}
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = contextFailure(executorName(task.Agent), err)
				return nil
			}
			outcomes[i] = o.run(ctx, task.Agent, task.Input)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

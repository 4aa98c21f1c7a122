package workflow

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/arvalo/arvalo/agent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Step 顺序工作流中的一步
type Step struct {
	Agent Executor
	Input agent.Input
	// OnSuccess 成功后调用，可向共享上下文写入额外的键
	OnSuccess func(res *agent.Result, wctx map[string]any)
	// OnError 失败后调用，随后工作流中止
	OnError func(res *agent.Result)
}

// WorkflowResult 顺序工作流的结果
type WorkflowResult struct {
	Success bool            `json:"success"`
	Results []*agent.Result `json:"results"`
	Context map[string]any  `json:"context"`
	// FailedStep 失败步骤的下标，成功时为 -1
	FailedStep int           `json:"failed_step"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ResultKey 返回某个 Agent 结果在共享上下文中的键
func ResultKey(agentName string) string {
	return agentName + "_result"
}

// ExecuteWorkflow 按顺序执行步骤。每一步的输入上下文是共享上下文与该步自身上下文的合并（后者优先）。
// 任一步失败时调用其 OnError 并中止，已完成步骤的结果仍然返回。
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, steps []Step, initial map[string]any) *WorkflowResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "workflow.sequential")
	span.SetAttributes(attribute.Int("workflow.steps", len(steps)))
	defer span.End()

	wctx := make(map[string]any, len(initial)+len(steps))
	maps.Copy(wctx, initial)
	out := &WorkflowResult{
		Results:    make([]*agent.Result, 0, len(steps)),
		Context:    wctx,
		FailedStep: -1,
	}

	for i, step := range steps {
		name := executorName(step.Agent)

		var res *agent.Result
		if err := ctx.Err(); err != nil {
			res = contextFailure(name, err)
		} else {
			input := step.Input
			input.Context = make(map[string]any, len(wctx)+len(step.Input.Context))
			maps.Copy(input.Context, wctx)
			maps.Copy(input.Context, step.Input.Context)
			res = o.run(ctx, step.Agent, input)
		}
		out.Results = append(out.Results, res)

		if !res.Success {
			o.hook(name, func() {
				if step.OnError != nil {
					step.OnError(res)
				}
			})
			out.FailedStep = i
			out.Error = fmt.Sprintf("step %d (%s) failed: %s", i, name, res.Error)
			out.Duration = time.Since(start)
			span.SetStatus(codes.Error, out.Error)
			o.logger.Warn("workflow aborted",
				zap.Int("step", i),
				zap.String("agent", name),
				zap.String("error", res.Error),
			)
			return out
		}

		wctx[ResultKey(name)] = res.Data
		if step.OnSuccess != nil {
			o.hook(name, func() { step.OnSuccess(res, wctx) })
		}
	}

	out.Success = true
	out.Duration = time.Since(start)
	o.logger.Debug("workflow completed", zap.Int("steps", len(steps)), zap.Duration("duration", out.Duration))
	return out
}

// hook 调用用户钩子，钩子 panic 只记录日志
func (o *Orchestrator) hook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("workflow hook panicked", zap.String("agent", name), zap.Any("panic", r))
		}
	}()
	fn()
}

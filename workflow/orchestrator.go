package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/specialists"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/arvalo/arvalo/workflow"

// Executor 可编排的执行单元
type Executor = agent.Executor

// Agents 编排器使用的 Agent。AnalyzePurchase 需要前三个，ReceiptToWarranty 需要 Receipt 与 Warranty。
type Agents struct {
	ReturnPolicy       Executor
	PriceDetective     Executor
	RecurrentOptimizer Executor
	Receipt            Executor
	Warranty           Executor
}

// AgentsFromSet 从专用 Agent 集合取出编排所需的执行器
func AgentsFromSet(set *specialists.Set) Agents {
	return Agents{
		ReturnPolicy:       set.ReturnPolicy,
		PriceDetective:     set.PriceDetective,
		RecurrentOptimizer: set.RecurrentOptimizer,
		Receipt:            set.Receipt,
		Warranty:           set.Warranty,
	}
}

// Options 编排器选项
type Options struct {
	// MaxParallel ExecuteParallel 的并发上限，<= 0 表示不限
	MaxParallel int
	Logger      *zap.Logger
	Tracer      trace.Tracer
}

// Orchestrator 组合多个 Agent 的执行
type Orchestrator struct {
	agents Agents
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

// NewOrchestrator 创建编排器
func NewOrchestrator(agents Agents, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	return &Orchestrator{
		agents: agents,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "orchestrator")),
		tracer: opts.Tracer,
	}
}

// Agents 返回编排器持有的 Agent
func (o *Orchestrator) Agents() Agents { return o.agents }

// run 执行单个 Agent，把 panic 与空结果转换为失败结果
func (o *Orchestrator) run(ctx context.Context, exec Executor, input agent.Input) (res *agent.Result) {
	if exec == nil {
		return agent.FailedResult("", agent.ErrorKindInternal, "no agent configured")
	}
	name := exec.Name()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent panicked",
				zap.String("agent", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = agent.FailedResult(name, agent.ErrorKindInternal, fmt.Sprintf("agent %s panicked: %v", name, r))
		}
	}()
	res = exec.Execute(ctx, input)
	if res == nil {
		res = agent.FailedResult(name, agent.ErrorKindInternal, fmt.Sprintf("agent %s returned no result", name))
	}
	if res.Agent == "" {
		res.Agent = name
	}
	return res
}

// contextFailure 在 ctx 已结束时构造失败结果
func contextFailure(name string, err error) *agent.Result {
	kind := agent.ErrorKindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = agent.ErrorKindTimeout
	}
	return agent.FailedResult(name, kind, err.Error())
}

func executorName(exec Executor) string {
	if exec == nil {
		return ""
	}
	return exec.Name()
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arvalo/arvalo/agent/observability"
	"github.com/arvalo/arvalo/internal/ctxkeys"
	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/llm/pricing"
	"github.com/arvalo/arvalo/llm/retry"
	"github.com/arvalo/arvalo/llm/tokenizer"
	"github.com/arvalo/arvalo/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/arvalo/arvalo/agent"

// Executor 最小执行接口，workflow 只依赖它
type Executor interface {
	Name() string
	Execute(ctx context.Context, input Input) *Result
}

// Agent 绑定了系统提示、模型参数与工具集的循环引擎实例
type Agent struct {
	cfg      Config
	provider llm.Provider
	registry *Registry
	retryer  retry.Retryer
	pricing  pricing.Func
	counter  tokenizer.Counter
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option 配置 Agent
type Option func(*agentOptions)

type agentOptions struct {
	logger      *zap.Logger
	retryPolicy *retry.RetryPolicy
	pricing     pricing.Func
	counter     tokenizer.Counter
	observer    Observer
	tracer      trace.Tracer
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *agentOptions) { o.logger = logger }
}

// WithRetryPolicy 设置模型调用的重试策略
func WithRetryPolicy(p *retry.RetryPolicy) Option {
	return func(o *agentOptions) { o.retryPolicy = p }
}

// WithPricing 设置定价函数
func WithPricing(f pricing.Func) Option {
	return func(o *agentOptions) { o.pricing = f }
}

// WithTokenCounter Provider 未返回用量时用于估算
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(o *agentOptions) { o.counter = c }
}

// WithObserver 设置观测钩子
func WithObserver(obs Observer) Option {
	return func(o *agentOptions) { o.observer = obs }
}

// WithTracer 设置 OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *agentOptions) { o.tracer = t }
}

// New 创建 Agent。registry 为 nil 时使用空注册表。
func New(cfg Config, provider llm.Provider, registry *Registry, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, ErrProviderNotSet
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := agentOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.pricing == nil {
		o.pricing = pricing.Blended(pricing.DefaultBlendedRate)
	}
	if o.counter == nil {
		o.counter = tokenizer.NewEstimatorCounter()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if registry == nil {
		registry = NewRegistry()
	}

	logger := o.logger.With(zap.String("agent", cfg.Name))
	return &Agent{
		cfg:      cfg.withDefaults(),
		provider: provider,
		registry: registry,
		retryer:  retry.NewBackoffRetryer(o.retryPolicy, logger),
		pricing:  o.pricing,
		counter:  o.counter,
		observer: o.observer,
		tracer:   o.tracer,
		logger:   logger,
	}, nil
}

// Name 返回 Agent 名称
func (a *Agent) Name() string { return a.cfg.Name }

// Config 返回配置副本
func (a *Agent) Config() Config { return a.cfg }

// Registry 返回工具注册表
func (a *Agent) Registry() *Registry { return a.registry }

// run 单次执行的瞬时状态，只由 Execute 修改
type run struct {
	id         string
	state      State
	messages   []types.Message
	iterations int
	toolsUsed  []string
	reasoning  []string
	tokensUsed int
	tokensIn   int
	tokensOut  int
}

// addUsage 累加用量，tokensUsed 单调不减
func (r *run) addUsage(u llm.Usage) {
	if u.InputTokens > 0 {
		r.tokensIn += u.InputTokens
	}
	if u.OutputTokens > 0 {
		r.tokensOut += u.OutputTokens
	}
	r.tokensUsed = r.tokensIn + r.tokensOut
}

func (r *run) transition(to State) error {
	if !CanTransition(r.state, to) {
		return ErrInvalidTransition{From: r.state, To: to}
	}
	r.state = to
	return nil
}

// Execute 运行循环直到 COMPLETE / EXHAUSTED / FAILED。永不返回 nil，永不 panic。
func (a *Agent) Execute(ctx context.Context, input Input) (res *Result) {
	start := time.Now()
	r := &run{
		id:        uuid.NewString(),
		state:     StateRunning,
		toolsUsed: []string{},
		reasoning: []string{},
	}

	if a.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ExecutionTimeout)
		defer cancel()
	}

	ctx = ctxkeys.WithExecutionID(ctx, r.id)
	ctx = ctxkeys.WithAgentName(ctx, a.cfg.Name)
	ctx = ctxkeys.WithUserID(ctx, input.UserID)

	ctx, span := a.tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("agent.name", a.cfg.Name),
		attribute.String("agent.execution_id", r.id),
		attribute.String("user.id", input.UserID),
	))
	defer span.End()

	logger := a.logger.With(zap.String("execution_id", r.id))
	logger.Info("executing task", zap.String("user_id", input.UserID))
	a.observer.ExecutionStarted(a.cfg.Name, r.id)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("execution panicked", zap.Any("panic", rec))
			res = a.fail(r, ErrorKindInternal, fmt.Sprintf("internal error: %v", rec))
		}
		res.Duration = time.Since(start)
		res.Cost = a.pricing(a.cfg.Model, r.tokensIn, r.tokensOut)
		a.finish(span, logger, start, res)
	}()

	maxIterations := a.cfg.MaxIterations
	if input.MaxIterations > 0 {
		maxIterations = input.MaxIterations
	}

	r.messages = append(r.messages, types.NewUserMessage(buildPrompt(input)))
	tools := a.registry.Schemas()

	for r.iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return a.failContext(r, err)
		}
		r.iterations++
		logger.Debug("agent iteration", zap.Int("iteration", r.iterations))

		resp, err := a.complete(ctx, r, tools)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.failContext(r, ctxErr)
			}
			logger.Warn("model call failed", zap.Int("iteration", r.iterations), zap.Error(err))
			return a.fail(r, ErrorKindModel, err.Error())
		}

		usage := resp.Usage
		if usage.Total() == 0 {
			usage = a.estimateUsage(r, resp)
		}
		r.addUsage(usage)

		for _, b := range resp.Content {
			if b.Type == types.BlockText && b.Text != "" {
				r.reasoning = append(r.reasoning, b.Text)
			}
		}
		if len(resp.Content) > 0 {
			r.messages = append(r.messages, types.NewAssistantMessage(resp.Content...))
		}

		uses := resp.ToolUses()
		if len(uses) > 0 {
			// 严格按模型给出的顺序逐个执行，后面的调用可能依赖前面的副作用
			results := make([]types.ContentBlock, 0, len(uses))
			for _, use := range uses {
				r.toolsUsed = append(r.toolsUsed, use.Name)
				results = append(results, a.runTool(ctx, logger, use).Block(use.ID))
			}
			r.messages = append(r.messages, types.NewToolResultsMessage(results...))
		}

		if len(uses) == 0 || resp.NaturalStop() {
			_ = r.transition(StateComplete)
			break
		}
	}

	if r.state == StateRunning {
		if err := ctx.Err(); err != nil {
			return a.failContext(r, err)
		}
		_ = r.transition(StateExhausted)
		logger.Warn("max iterations reached", zap.Int("iterations", r.iterations))
	}

	res = a.result(r)
	res.Success = true
	res.Data = ExtractFinalAnswer(r.messages)

	if r.state == StateComplete && a.cfg.AnswerSchema != nil {
		if err := ValidateAnswer(a.cfg.Name, a.cfg.AnswerSchema, res.Data); err != nil {
			res.Success = false
			res.Error = err.Error()
			res.ErrorKind = ErrorKindMalformedAnswer
		}
	}
	return res
}

// complete 调用模型：每次尝试单独超时，按策略重试
func (a *Agent) complete(ctx context.Context, r *run, tools []types.ToolSchema) (*llm.Response, error) {
	req := &llm.Request{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		System:      a.cfg.SystemPrompt,
		Messages:    r.messages,
		Tools:       tools,
	}

	return retry.DoWithResult(ctx, a.retryer, func(ctx context.Context, attempt int) (*llm.Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
		defer cancel()

		callCtx, span := a.tracer.Start(callCtx, "llm.complete", trace.WithAttributes(
			attribute.String("llm.provider", a.provider.Name()),
			attribute.String("llm.model", a.cfg.Model),
			attribute.Int("llm.attempt", attempt),
			attribute.Int("agent.iteration", r.iterations),
		))
		defer span.End()

		started := time.Now()
		resp, err := a.provider.Complete(callCtx, req)
		if err == nil && resp == nil {
			err = types.NewUpstreamError("provider returned empty response").WithProvider(a.provider.Name())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.observer.ModelCalled(a.cfg.Name, a.cfg.Model, 0, 0, time.Since(started), err)
			return nil, err
		}
		span.SetAttributes(
			attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
			attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
			attribute.String("llm.stop_reason", resp.StopReason),
		)
		a.observer.ModelCalled(a.cfg.Name, a.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(started), nil)
		return resp, nil
	})
}

// runTool 解析输入并通过注册表执行，失败以 ToolOutcome 返回
func (a *Agent) runTool(ctx context.Context, logger *zap.Logger, use types.ContentBlock) types.ToolOutcome {
	started := time.Now()
	var outcome types.ToolOutcome

	params := map[string]any{}
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &params); err != nil {
			outcome = types.ToolFailure(fmt.Sprintf("invalid input for tool %s: %v", use.Name, err))
		}
	}
	if outcome.Error == "" {
		outcome = a.registry.ExecuteTool(ctx, use.Name, params)
	}

	d := time.Since(started)
	a.observer.ToolCalled(a.cfg.Name, use.Name, outcome.Success, d)
	logger.Debug("tool executed",
		zap.String("tool", use.Name),
		zap.String("tool_use_id", use.ID),
		zap.Bool("success", outcome.Success),
		zap.Duration("duration", d),
	)
	return outcome
}

func (a *Agent) estimateUsage(r *run, resp *llm.Response) llm.Usage {
	return llm.Usage{
		InputTokens:  a.counter.CountMessages(a.cfg.SystemPrompt, r.messages),
		OutputTokens: a.counter.CountMessages("", []types.Message{types.NewAssistantMessage(resp.Content...)}),
	}
}

func (a *Agent) result(r *run) *Result {
	return &Result{
		Reasoning:   r.reasoning,
		ToolsUsed:   r.toolsUsed,
		TokensUsed:  r.tokensUsed,
		Iterations:  r.iterations,
		State:       r.state,
		Agent:       a.cfg.Name,
		ExecutionID: r.id,
	}
}

func (a *Agent) fail(r *run, kind ErrorKind, msg string) *Result {
	if r.state == StateRunning {
		_ = r.transition(StateFailed)
	}
	res := a.result(r)
	res.State = StateFailed
	res.Success = false
	res.Error = msg
	res.ErrorKind = kind
	return res
}

func (a *Agent) failContext(r *run, err error) *Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return a.fail(r, ErrorKindTimeout, "execution timed out: "+err.Error())
	}
	return a.fail(r, ErrorKindCanceled, "execution canceled: "+err.Error())
}

func (a *Agent) finish(span trace.Span, logger *zap.Logger, start time.Time, res *Result) {
	span.SetAttributes(
		attribute.String("agent.state", string(res.State)),
		attribute.Int("agent.iterations", res.Iterations),
		attribute.Int("agent.tokens", res.TokensUsed),
		attribute.Float64("agent.cost", res.Cost),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
		logger.Warn("execution failed",
			zap.String("state", string(res.State)),
			zap.String("error_kind", string(res.ErrorKind)),
			zap.String("error", res.Error),
		)
	} else {
		logger.Info("execution completed",
			zap.String("state", string(res.State)),
			zap.Int("iterations", res.Iterations),
			zap.Int("tokens_used", res.TokensUsed),
			zap.Duration("duration", res.Duration),
		)
	}

	tools := make([]string, len(res.ToolsUsed))
	copy(tools, res.ToolsUsed)
	a.observer.ExecutionFinished(observability.ExecutionMetric{
		AgentName:   a.cfg.Name,
		ExecutionID: res.ExecutionID,
		StartTime:   start,
		EndTime:     start.Add(res.Duration),
		Duration:    res.Duration,
		Success:     res.Success,
		State:       string(res.State),
		Iterations:  res.Iterations,
		TokensUsed:  res.TokensUsed,
		Cost:        res.Cost,
		ToolsUsed:   tools,
		Error:       res.Error,
	})
}

// buildPrompt 把任务与上下文拼成首条用户消息
func buildPrompt(input Input) string {
	if len(input.Context) == 0 {
		return input.Prompt
	}
	ctxJSON, err := json.MarshalIndent(input.Context, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s\n\nContext: %v", input.Prompt, input.Context)
	}
	return fmt.Sprintf("%s\n\nContext:\n%s", input.Prompt, ctxJSON)
}

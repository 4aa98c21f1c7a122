package specialists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/tools"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// Agent 名称
const (
	NameReceipt            = "receipt"
	NameReturnPolicy       = "return-policy"
	NamePriceDetective     = "price-detective"
	NameRecurrentOptimizer = "recurrent-optimizer"
	NameWarranty           = "warranty"
)

var (
	// ErrAgentFailed 专用 Agent 执行失败（非答案格式问题）
	ErrAgentFailed = errors.New("agent execution failed")

	// ErrMissingArgument 入口参数缺失
	ErrMissingArgument = errors.New("missing argument")

	errCatalogRequired = errors.New("specialists: tool catalog is required")
)

// Tuning 所有专用 Agent 共用的模型参数。除 Temperature（0 原样生效）外，零值使用 agent 包默认值
type Tuning struct {
	Model            string
	MaxIterations    int
	MaxTokens        int
	Temperature      float64
	ModelTimeout     time.Duration
	ExecutionTimeout time.Duration
}

// Deps 构建专用 Agent 的依赖
type Deps struct {
	Provider llm.Provider
	Catalog  *tools.Catalog
	Tuning   Tuning

	// StrictAnswers 为 true 时由循环引擎按答案 Schema 校验，不合规返回 malformed_answer
	StrictAnswers bool

	// Options 应用到每个 Agent（日志、重试、定价、观测）
	Options []agent.Option
	// Wrap 包装每个 Agent 的执行器，例如结果缓存
	Wrap func(agent.Executor) agent.Executor

	Logger *zap.Logger
}

// definition 专用 Agent 的静态定义
type definition struct {
	name        string
	description string
	prompt      systemPrompt
	tools       []string
	schema      func() *openapi3.Schema
}

// base 专用 Agent 的公共部分
type base struct {
	inner  *agent.Agent
	exec   agent.Executor
	schema *openapi3.Schema
}

func newBase(def definition, deps Deps) (*base, error) {
	if deps.Provider == nil {
		return nil, agent.ErrProviderNotSet
	}
	if deps.Catalog == nil {
		return nil, errCatalogRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	names := availableTools(deps.Catalog, def.tools, logger.With(zap.String("agent", def.name)))
	reg, err := deps.Catalog.Registry(names)
	if err != nil {
		return nil, fmt.Errorf("build %s tools: %w", def.name, err)
	}

	schema := def.schema()
	cfg := agent.Config{
		Name:             def.name,
		Description:      def.description,
		SystemPrompt:     def.prompt.Render(),
		Model:            deps.Tuning.Model,
		MaxIterations:    deps.Tuning.MaxIterations,
		MaxTokens:        deps.Tuning.MaxTokens,
		Temperature:      deps.Tuning.Temperature,
		ModelTimeout:     deps.Tuning.ModelTimeout,
		ExecutionTimeout: deps.Tuning.ExecutionTimeout,
	}
	if deps.StrictAnswers {
		cfg.AnswerSchema = schema
	}

	opts := append([]agent.Option{agent.WithLogger(logger)}, deps.Options...)
	inner, err := agent.New(cfg, deps.Provider, reg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build %s agent: %w", def.name, err)
	}

	b := &base{inner: inner, exec: inner, schema: schema}
	if deps.Wrap != nil {
		b.exec = deps.Wrap(inner)
	}
	return b, nil
}

// availableTools 过滤掉目录里没有的工具（例如未配置搜索服务时的 web_search）
func availableTools(catalog *tools.Catalog, names []string, logger *zap.Logger) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := catalog.Get(name); !ok {
			logger.Warn("tool not configured, agent will run without it", zap.String("tool", name))
			continue
		}
		out = append(out, name)
	}
	return out
}

// Name implements agent.Executor.
func (b *base) Name() string { return b.inner.Name() }

// Execute implements agent.Executor.
func (b *base) Execute(ctx context.Context, input agent.Input) *agent.Result {
	return b.exec.Execute(ctx, input)
}

// Tools 返回该 Agent 可用的工具名
func (b *base) Tools() []string { return b.inner.Registry().Names() }

// AnswerSchema 返回答案 Schema
func (b *base) AnswerSchema() *openapi3.Schema { return b.schema }

func (b *base) missing(arg string) *agent.Result {
	return agent.FailedResult(b.Name(), agent.ErrorKindInvalidInput, fmt.Sprintf("%s: %s", ErrMissingArgument, arg))
}

// decode 把结果解码为具体答案类型
func decode[T any](b *base, res *agent.Result) (T, *agent.Result, error) {
	var zero T
	if !res.Success && res.ErrorKind != agent.ErrorKindMalformedAnswer {
		return zero, res, fmt.Errorf("%w: %s: %s", ErrAgentFailed, b.Name(), res.Error)
	}
	out, err := agent.DecodeAnswer[T](res, b.schema)
	if err != nil {
		return zero, res, err
	}
	return out, res, nil
}

func required(vals ...string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// =============================================================================
// 🧩 Set
// =============================================================================

// Set 全部专用 Agent
type Set struct {
	Receipt            *ReceiptAgent
	ReturnPolicy       *ReturnPolicyAgent
	PriceDetective     *PriceDetectiveAgent
	RecurrentOptimizer *RecurrentOptimizerAgent
	Warranty           *WarrantyAgent
}

// NewSet 构建全部专用 Agent
func NewSet(deps Deps) (*Set, error) {
	var (
		s   Set
		err error
	)
	if s.Receipt, err = NewReceiptAgent(deps); err != nil {
		return nil, err
	}
	if s.ReturnPolicy, err = NewReturnPolicyAgent(deps); err != nil {
		return nil, err
	}
	if s.PriceDetective, err = NewPriceDetectiveAgent(deps); err != nil {
		return nil, err
	}
	if s.RecurrentOptimizer, err = NewRecurrentOptimizerAgent(deps); err != nil {
		return nil, err
	}
	if s.Warranty, err = NewWarrantyAgent(deps); err != nil {
		return nil, err
	}
	return &s, nil
}

// All 按固定顺序返回全部 Agent
func (s *Set) All() []agent.Executor {
	return []agent.Executor{s.Receipt, s.ReturnPolicy, s.PriceDetective, s.RecurrentOptimizer, s.Warranty}
}

// Get 按名称查找 Agent
func (s *Set) Get(name string) (agent.Executor, bool) {
	for _, a := range s.All() {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Names 返回全部 Agent 名称
func (s *Set) Names() []string {
	all := s.All()
	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.Name()
	}
	return out
}

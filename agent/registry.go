package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/arvalo/arvalo/types"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Registry 按名称保存工具。重复注册同名工具时后者覆盖前者，并保留原有顺序位置。
type Registry struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]*registeredTool
	validate bool
	logger   *zap.Logger
}

type registeredTool struct {
	tool    Tool
	limiter *rate.Limiter
	schema  *openapi3.Schema
}

// RegistryOption 配置 Registry
type RegistryOption func(*Registry)

// WithInputValidation 执行前按 InputSchema 校验工具输入
func WithInputValidation() RegistryOption {
	return func(r *Registry) { r.validate = true }
}

// WithRegistryLogger 设置日志
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry 创建工具注册表
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*registeredTool),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddTool 注册工具，同名覆盖
func (r *Registry) AddTool(tool Tool) error {
	if err := tool.validate(); err != nil {
		return fmt.Errorf("add tool %q: %w", tool.Name, err)
	}

	entry := &registeredTool{tool: tool}
	if tool.RateLimit > 0 {
		burst := int(tool.RateLimit)
		if burst < 1 {
			burst = 1
		}
		entry.limiter = rate.NewLimiter(rate.Limit(tool.RateLimit), burst)
	}
	if r.validate && tool.InputSchema != nil {
		schema, err := toOpenAPISchema(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("add tool %q: %w", tool.Name, err)
		}
		entry.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	} else {
		r.logger.Debug("tool replaced", zap.String("tool", tool.Name))
	}
	r.tools[tool.Name] = entry
	return nil
}

// AddTools 按顺序批量注册，等价于多次调用 AddTool
func (r *Registry) AddTools(tools ...Tool) error {
	var errs []error
	for _, t := range tools {
		if err := r.AddTool(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get 按名称查找工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return entry.tool, true
}

// Names 返回注册顺序的工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len 返回工具数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas 返回注册顺序的模型侧工具定义
func (r *Registry) Schemas() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool.Schema())
	}
	return out
}

// ExecuteTool 执行工具。任何失败都以 ToolOutcome{Success:false} 返回，供模型在下一轮看到。
func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) types.ToolOutcome {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return types.ToolFailure(fmt.Sprintf("Tool %s not found", name))
	}
	if params == nil {
		params = map[string]any{}
	}

	if entry.schema != nil {
		if err := entry.schema.VisitJSON(toJSONValue(params), openapi3.MultiErrors()); err != nil {
			return types.ToolFailure(fmt.Sprintf("invalid input for tool %s: %v", name, err))
		}
	}

	if entry.limiter != nil {
		if err := entry.limiter.Wait(ctx); err != nil {
			return types.ToolFailure(fmt.Sprintf("tool %s rate limit wait: %v", name, err))
		}
	}

	if entry.tool.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, entry.tool.Timeout)
		defer cancel()
	}

	type outcome struct {
		data any
		err  error
	}
	// 带缓冲，超时后 goroutine 仍可写入并退出
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		data, err := entry.tool.Execute(ctx, params)
		done <- outcome{data: data, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Debug("tool failed", zap.String("tool", name), zap.Error(res.err))
			return types.ToolFailure(res.err.Error())
		}
		return types.ToolSuccess(res.data)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.ToolFailure(fmt.Sprintf("tool %s timed out", name))
		}
		return types.ToolFailure(fmt.Sprintf("tool %s canceled", name))
	}
}

// toOpenAPISchema converts a tool input schema for kin-openapi validation.
func toOpenAPISchema(s *types.JSONSchema) (*openapi3.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	return &schema, nil
}

// toJSONValue normalizes Go values to the shapes encoding/json produces.
func toJSONValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

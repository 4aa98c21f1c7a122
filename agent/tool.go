package agent

import (
	"context"
	"time"

	"github.com/arvalo/arvalo/types"
)

// ToolFunc 工具执行函数，params 为模型给出的 JSON 输入
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// Tool 一个具名的外部能力
type Tool struct {
	Name        string
	Description string
	InputSchema *types.JSONSchema
	Execute     ToolFunc

	// RateLimit 每秒调用上限，0 表示不限
	RateLimit float64
	// Timeout 单次调用超时，0 表示只受调用方 context 约束
	Timeout time.Duration
}

// Schema converts the tool into the model-facing schema.
func (t Tool) Schema() types.ToolSchema {
	params := t.InputSchema
	if params == nil {
		params = types.NewObjectSchema()
	}
	return types.ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

func (t Tool) validate() error {
	if t.Name == "" || t.Execute == nil {
		return ErrInvalidTool
	}
	return nil
}

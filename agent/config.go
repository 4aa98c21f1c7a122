package agent

import (
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// 默认值
const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 4096
	DefaultModelTimeout  = 60 * time.Second
)

// Config Agent 配置，构造后不可变
type Config struct {
	Name         string
	Description  string
	SystemPrompt string
	Model        string

	MaxIterations int
	// Temperature 原样传给模型，0 即确定性采样，不做默认值替换
	Temperature float64
	MaxTokens   int

	// ModelTimeout 单次模型调用（每次重试）的超时
	ModelTimeout time.Duration
	// ExecutionTimeout 整个 Execute 的超时，0 表示只受调用方 context 约束
	ExecutionTimeout time.Duration

	// AnswerSchema 非空时校验最终答案，失败返回 ErrorKindMalformedAnswer
	AnswerSchema *openapi3.Schema
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	return c
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrConfigInvalid)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range [0,2]", ErrConfigInvalid, c.Temperature)
	}
	if c.MaxIterations < 0 || c.MaxTokens < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrConfigInvalid)
	}
	return nil
}

// Input 单次执行的输入
type Input struct {
	Prompt        string         `json:"prompt"`
	Context       map[string]any `json:"context,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
}

// ErrorKind 失败分类
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindModel           ErrorKind = "model"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindCanceled        ErrorKind = "canceled"
	ErrorKindMalformedAnswer ErrorKind = "malformed_answer"
	ErrorKindInternal        ErrorKind = "internal"
	ErrorKindInvalidInput    ErrorKind = "invalid_input"
)

// Result 单次执行的结果
type Result struct {
	Success     bool          `json:"success"`
	Data        any           `json:"data"`
	Reasoning   []string      `json:"reasoning"`
	ToolsUsed   []string      `json:"tools_used"`
	TokensUsed  int           `json:"tokens_used"`
	Iterations  int           `json:"iterations"`
	Cost        float64       `json:"cost"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	State       State         `json:"state"`
	Agent       string        `json:"agent"`
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
	Cached      bool          `json:"cached,omitempty"`
}

// FailedResult 构造一个未进入循环即失败的结果
func FailedResult(agentName string, kind ErrorKind, msg string) *Result {
	return &Result{
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
		State:     StateFailed,
		Agent:     agentName,
		Reasoning: []string{},
		ToolsUsed: []string{},
	}
}

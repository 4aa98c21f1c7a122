package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotSet 模型 Provider 未设置
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrConfigInvalid 配置无效
	ErrConfigInvalid = errors.New("invalid agent config")

	// ErrInvalidTool 工具定义缺少名称或执行函数
	ErrInvalidTool = errors.New("invalid tool")

	// ErrToolNotFound 工具未找到
	ErrToolNotFound = errors.New("tool not found")

	// ErrMalformedAnswer 最终答案不符合约定的结构
	ErrMalformedAnswer = errors.New("malformed answer")
)

// MalformedAnswerError 描述最终答案校验失败的原因
type MalformedAnswerError struct {
	Agent  string
	Reason string
	Data   any
}

func (e *MalformedAnswerError) Error() string {
	if e.Agent == "" {
		return fmt.Sprintf("malformed answer: %s", e.Reason)
	}
	return fmt.Sprintf("agent %s: malformed answer: %s", e.Agent, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedAnswer.
func (e *MalformedAnswerError) Unwrap() error {
	return ErrMalformedAnswer
}

// IsMalformedAnswer reports whether err is a malformed answer error.
func IsMalformedAnswer(err error) bool {
	return errors.Is(err, ErrMalformedAnswer)
}

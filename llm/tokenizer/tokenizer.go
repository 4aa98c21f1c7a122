// Package tokenizer 在 Provider 未返回用量时估算 Token 数。
package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/arvalo/arvalo/types"
	"github.com/pkoukk/tiktoken-go"
)

// Counter 计算文本与消息的 Token 数
type Counter interface {
	CountTokens(text string) int
	CountMessages(system string, messages []types.Message) int
}

// 每条消息的固定开销（角色标记、分隔符）
const (
	perMessageOverhead = 4
	conversationEnd    = 3
)

// TiktokenCounter 使用 tiktoken 编码；编码加载失败时退回字符估算
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
	fallback *EstimatorCounter
}

// NewTiktokenCounter 创建计数器，encoding 为空时使用 cl100k_base
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding, fallback: NewEstimatorCounter()}
}

// init lazily 初始化编码（首次使用时可能需要下载词表）
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) CountMessages(system string, messages []types.Message) int {
	return countMessages(t, system, messages)
}

// EstimatorCounter 基于字符数估算，CJK 约 1.5 字符/Token，其余约 4 字符/Token
type EstimatorCounter struct{}

// NewEstimatorCounter 创建字符估算计数器
func NewEstimatorCounter() *EstimatorCounter {
	return &EstimatorCounter{}
}

func (e *EstimatorCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	estimated := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func (e *EstimatorCounter) CountMessages(system string, messages []types.Message) int {
	return countMessages(e, system, messages)
}

func countMessages(c interface{ CountTokens(string) int }, system string, messages []types.Message) int {
	total := c.CountTokens(system)
	for _, msg := range messages {
		total += perMessageOverhead
		for _, b := range msg.Content {
			switch b.Type {
			case types.BlockText:
				total += c.CountTokens(b.Text)
			case types.BlockToolUse:
				total += c.CountTokens(b.Name) + c.CountTokens(string(b.Input))
			case types.BlockToolResult:
				total += c.CountTokens(b.Content)
			}
		}
	}
	return total + conversationEnd
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}

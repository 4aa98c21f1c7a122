// Package pricing 计算模型调用成本。
//
// 成本只是估算值，不用于计费对账。
package pricing

import (
	"strings"
	"sync"
)

// DefaultBlendedRate is the per-token USD rate used when nothing else is configured.
const DefaultBlendedRate = 0.000003

// Func 定价函数：根据模型与输入/输出 Token 数返回美元成本
type Func func(model string, inputTokens, outputTokens int) float64

// Blended 按统一的单 Token 费率计价，不区分输入和输出
func Blended(ratePerToken float64) Func {
	return func(_ string, inputTokens, outputTokens int) float64 {
		return float64(inputTokens+outputTokens) * ratePerToken
	}
}

// ModelPrice 模型价格（USD / 1K tokens）
type ModelPrice struct {
	Model       string  `yaml:"model" json:"model"`
	PriceInput  float64 `yaml:"price_input" json:"price_input"`
	PriceOutput float64 `yaml:"price_output" json:"price_output"`
}

// RateCard 按模型区分输入/输出价格，未知模型回退到 Fallback
type RateCard struct {
	mu       sync.RWMutex
	prices   map[string]ModelPrice
	fallback Func
}

// NewRateCard 创建价目表；fallback 为空时使用默认统一费率
func NewRateCard(fallback Func, prices ...ModelPrice) *RateCard {
	if fallback == nil {
		fallback = Blended(DefaultBlendedRate)
	}
	c := &RateCard{prices: make(map[string]ModelPrice), fallback: fallback}
	for _, p := range prices {
		c.Set(p)
	}
	return c
}

// DefaultRateCard 预置常用模型价格
func DefaultRateCard() *RateCard {
	return NewRateCard(nil,
		ModelPrice{Model: "claude-sonnet-4", PriceInput: 0.003, PriceOutput: 0.015},
		ModelPrice{Model: "claude-3-5-sonnet", PriceInput: 0.003, PriceOutput: 0.015},
		ModelPrice{Model: "claude-3-5-haiku", PriceInput: 0.0008, PriceOutput: 0.004},
		ModelPrice{Model: "claude-opus-4", PriceInput: 0.015, PriceOutput: 0.075},
		ModelPrice{Model: "gpt-4o-mini", PriceInput: 0.00015, PriceOutput: 0.0006},
		ModelPrice{Model: "gpt-4o", PriceInput: 0.0025, PriceOutput: 0.01},
	)
}

// Set 设置模型价格
func (c *RateCard) Set(p ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[p.Model] = p
}

// Lookup 精确匹配，其次最长前缀匹配（"claude-3-5-sonnet-20241022" 命中 "claude-3-5-sonnet"）
func (c *RateCard) Lookup(model string) (ModelPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.prices[model]; ok {
		return p, true
	}
	var best ModelPrice
	found := false
	for prefix, p := range c.prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best.Model) {
			best, found = p, true
		}
	}
	return best, found
}

// Func 返回绑定到本价目表的定价函数
func (c *RateCard) Func() Func {
	return c.Calculate
}

// Calculate 计算成本
func (c *RateCard) Calculate(model string, inputTokens, outputTokens int) float64 {
	p, ok := c.Lookup(model)
	if !ok {
		return c.fallback(model, inputTokens, outputTokens)
	}
	return float64(inputTokens)/1000*p.PriceInput + float64(outputTokens)/1000*p.PriceOutput
}

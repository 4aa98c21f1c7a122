package specialists

import (
	"context"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/tools"
)

var receiptDefinition = definition{
	name:        NameReceipt,
	description: "Extracts purchases from receipts and records them.",
	tools:       []string{tools.GetReceipt, tools.SavePurchase, tools.LookupMerchant},
	schema:      ReceiptSchema,
	prompt: systemPrompt{
		Role:     "You are a receipt analyst for a personal money-recovery service.",
		Identity: "You read receipts, identify the merchant, the purchase date, each line item and the total, and record every purchased item so later checks can find it.",
		Policies: []string{
			"Load the receipt with get_receipt when you are given a receipt_id; otherwise work from the receipt text in the context.",
			"Call lookup_merchant with the merchant name to learn its canonical name.",
			"Call save_purchase once per line item with a positive price. Pass the receipt_id when you have one and the purchase date in YYYY-MM-DD form.",
			"Skip taxes, tips, discounts and bag fees as separate purchases; they are part of the total.",
		},
		OutputRules: commonOutputRules,
		Prohibits: []string{
			"Saving the same line item twice.",
			"Guessing a total that is not printed on the receipt.",
		},
		Shape: `{"merchant": "Acme", "purchase_date": "2026-01-31", "total": 42.17, "currency": "USD",
 "items": [{"name": "USB-C cable", "quantity": 2, "price": 9.99}],
 "purchase_ids": ["<ids returned by save_purchase>"]}`,
	},
}

// ReceiptAgent 小票解析
type ReceiptAgent struct{ *base }

// NewReceiptAgent 创建小票 Agent
func NewReceiptAgent(deps Deps) (*ReceiptAgent, error) {
	b, err := newBase(receiptDefinition, deps)
	if err != nil {
		return nil, err
	}
	return &ReceiptAgent{b}, nil
}

// ExtractReceipt 解析已存储的小票并写入购买记录
func (a *ReceiptAgent) ExtractReceipt(ctx context.Context, receiptID, userID string) *agent.Result {
	if !required(receiptID) {
		return a.missing("receipt_id")
	}
	return a.Execute(ctx, ReceiptInput(receiptID, userID))
}

// ReceiptInput 构造解析已存储小票的输入
func ReceiptInput(receiptID, userID string) agent.Input {
	return agent.Input{
		Prompt:  "Extract the purchases from receipt " + receiptID + " and save each line item.",
		Context: map[string]any{"receipt_id": receiptID},
		UserID:  userID,
	}
}

// ExtractReceiptAnswer ExtractReceipt 的类型化版本
func (a *ReceiptAgent) ExtractReceiptAnswer(ctx context.Context, receiptID, userID string) (ReceiptAnswer, *agent.Result, error) {
	return decode[ReceiptAnswer](a.base, a.ExtractReceipt(ctx, receiptID, userID))
}

// ParseReceiptText 解析原始小票文本（例如 OCR 结果或邮件正文）
func (a *ReceiptAgent) ParseReceiptText(ctx context.Context, text, userID string) *agent.Result {
	if !required(text) {
		return a.missing("receipt text")
	}
	return a.Execute(ctx, agent.Input{
		Prompt:  "Parse the receipt text in the context and save each line item as a purchase.",
		Context: map[string]any{"receipt_text": text},
		UserID:  userID,
	})
}

// ParseReceiptTextAnswer ParseReceiptText 的类型化版本
func (a *ReceiptAgent) ParseReceiptTextAnswer(ctx context.Context, text, userID string) (ReceiptAnswer, *agent.Result, error) {
	return decode[ReceiptAnswer](a.base, a.ParseReceiptText(ctx, text, userID))
}

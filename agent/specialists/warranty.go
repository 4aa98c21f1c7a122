package specialists

import (
	"context"
	"fmt"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/tools"
)

// DefaultExpiringDays ExpiringWarranties 默认窗口
const DefaultExpiringDays = 30

var warrantyDefinition = definition{
	name:        NameWarranty,
	description: "Finds and records warranty coverage and warns before it lapses.",
	tools:       []string{tools.GetPurchase, tools.WebSearch, tools.SaveWarranty, tools.ListWarranties},
	schema:      WarrantySchema,
	prompt: systemPrompt{
		Role:     "You are a warranty tracker.",
		Identity: "You work out what warranty covers a purchase, record it, and remind the user before coverage ends.",
		Policies: []string{
			"Call get_purchase first; merchant_policy.warranty_months is the store warranty when present.",
			"Otherwise web_search for the manufacturer warranty of the exact product.",
			"When you find coverage, call save_warranty once with the months and provider. The start date defaults to the purchase date.",
			"For expiry reminders, call list_warranties with expiring_within_days and report each one in expiring.",
		},
		OutputRules: commonOutputRules,
		Shape: `{"has_warranty": true, "warranty_months": 24, "expires_at": "2028-01-31", "provider": "Acme",
 "expiring": [{"purchase_id": "p1", "provider": "Acme", "expires_at": "2026-03-01", "days_remaining": 9}],
 "recommendations": ["Test the blender and file any claim before Mar 1"]}`,
	},
}

// WarrantyAgent 保修跟踪
type WarrantyAgent struct{ *base }

// NewWarrantyAgent 创建保修 Agent
func NewWarrantyAgent(deps Deps) (*WarrantyAgent, error) {
	b, err := newBase(warrantyDefinition, deps)
	if err != nil {
		return nil, err
	}
	return &WarrantyAgent{b}, nil
}

// ExtractWarranty 查找并记录一笔购买的保修
func (a *WarrantyAgent) ExtractWarranty(ctx context.Context, purchaseID, userID string) *agent.Result {
	if !required(purchaseID) {
		return a.missing("purchase_id")
	}
	return a.Execute(ctx, WarrantyInput(purchaseID, userID))
}

// WarrantyInput 构造保修提取的输入
func WarrantyInput(purchaseID, userID string) agent.Input {
	return agent.Input{
		Prompt:  "Find the warranty that covers purchase " + purchaseID + ", record it, and say when it expires.",
		Context: map[string]any{"purchase_id": purchaseID},
		UserID:  userID,
	}
}

// ReceiptWarrantiesInput 构造"为小票中的全部商品登记保修"的输入，配合 receipt Agent 的结果使用
func ReceiptWarrantiesInput(userID string) agent.Input {
	return agent.Input{
		Prompt: "For every purchase saved from the receipt (see receipt_result.purchase_ids in the context), find and record the warranty. " +
			"Report the longest coverage in warranty_months and list every warranty found in expiring.",
		UserID: userID,
	}
}

// ExtractWarrantyAnswer ExtractWarranty 的类型化版本
func (a *WarrantyAgent) ExtractWarrantyAnswer(ctx context.Context, purchaseID, userID string) (WarrantyAnswer, *agent.Result, error) {
	return decode[WarrantyAnswer](a.base, a.ExtractWarranty(ctx, purchaseID, userID))
}

// ExpiringWarranties 列出 days 天内到期的保修；days <= 0 时使用默认窗口
func (a *WarrantyAgent) ExpiringWarranties(ctx context.Context, userID string, days int) *agent.Result {
	if !required(userID) {
		return a.missing("user_id")
	}
	if days <= 0 {
		days = DefaultExpiringDays
	}
	return a.Execute(ctx, agent.Input{
		Prompt:  fmt.Sprintf("List the warranties that expire in the next %d days and what the user should check before they lapse.", days),
		Context: map[string]any{"expiring_within_days": days},
		UserID:  userID,
	})
}

// ExpiringWarrantiesAnswer ExpiringWarranties 的类型化版本
func (a *WarrantyAgent) ExpiringWarrantiesAnswer(ctx context.Context, userID string, days int) (WarrantyAnswer, *agent.Result, error) {
	return decode[WarrantyAnswer](a.base, a.ExpiringWarranties(ctx, userID, days))
}

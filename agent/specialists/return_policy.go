package specialists

import (
	"context"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/tools"
)

var returnPolicyDefinition = definition{
	name:        NameReturnPolicy,
	description: "Decides whether a purchase can still be returned and by when.",
	tools:       []string{tools.GetPurchase, tools.LookupMerchant, tools.WebSearch},
	schema:      ReturnPolicySchema,
	prompt: systemPrompt{
		Role:     "You are a return-policy specialist.",
		Identity: "Given a purchase, you determine whether it can still be returned for a refund, the last day to do so and any conditions the user must meet.",
		Policies: []string{
			"Start with get_purchase. It reports days_since_purchase and, when the merchant is known, its return window and return_deadline.",
			"If the merchant policy is unknown, call lookup_merchant, then web_search for \"<merchant> return policy\" and read the window from the results.",
			"Count days from the purchase date. The purchase is eligible only if today is on or before the deadline.",
			"Mention restocking fees, receipt requirements and original-packaging rules as conditions.",
		},
		OutputRules: commonOutputRules,
		Shape: `{"eligible": true, "deadline_date": "2026-02-28", "days_remaining": 12,
 "conditions": ["Original packaging required"], "recommendations": ["Start the return online before Feb 28"]}`,
	},
}

// ReturnPolicyAgent 退货资格检查
type ReturnPolicyAgent struct{ *base }

// NewReturnPolicyAgent 创建退货 Agent
func NewReturnPolicyAgent(deps Deps) (*ReturnPolicyAgent, error) {
	b, err := newBase(returnPolicyDefinition, deps)
	if err != nil {
		return nil, err
	}
	return &ReturnPolicyAgent{b}, nil
}

// CheckReturnEligibility 检查购买是否仍可退货
func (a *ReturnPolicyAgent) CheckReturnEligibility(ctx context.Context, purchaseID, userID string) *agent.Result {
	if !required(purchaseID) {
		return a.missing("purchase_id")
	}
	return a.Execute(ctx, ReturnEligibilityInput(purchaseID, userID))
}

// ReturnEligibilityInput 构造退货检查的输入
func ReturnEligibilityInput(purchaseID, userID string) agent.Input {
	return agent.Input{
		Prompt:  "Check whether purchase " + purchaseID + " can still be returned and by which date.",
		Context: map[string]any{"purchase_id": purchaseID},
		UserID:  userID,
	}
}

// CheckReturnEligibilityAnswer CheckReturnEligibility 的类型化版本
func (a *ReturnPolicyAgent) CheckReturnEligibilityAnswer(ctx context.Context, purchaseID, userID string) (ReturnPolicyAnswer, *agent.Result, error) {
	return decode[ReturnPolicyAnswer](a.base, a.CheckReturnEligibility(ctx, purchaseID, userID))
}

package specialists

import (
	"context"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/tools"
)

var priceDetectiveDefinition = definition{
	name:        NamePriceDetective,
	description: "Finds price drops after purchase and records claimable differences.",
	tools:       []string{tools.GetPurchase, tools.CheckPrice, tools.WebSearch, tools.RecordPriceDrop},
	schema:      PriceSchema,
	prompt: systemPrompt{
		Role:     "You are a price detective.",
		Identity: "You compare what the user paid with what the same product costs now and tell them whether they can claim the difference.",
		Policies: []string{
			"Call get_purchase first. Use the purchase price as original_price and check merchant_policy.price_match_days.",
			"If the purchase has a product_url, call check_price on it. Otherwise web_search for the exact product at the same merchant and check_price the best matching URL.",
			"A drop is claimable only if the current price is lower and the purchase is still inside the merchant's price-match window.",
			"When a claimable drop is found, call record_price_drop exactly once with the new price and the source URL.",
		},
		OutputRules: commonOutputRules,
		Prohibits: []string{
			"Comparing against a different product, size or colour.",
		},
		Shape: `{"current_price": 79.99, "original_price": 99.99, "price_drop": 20.00, "claimable": true,
 "recommendations": ["Ask Acme for a $20.00 price adjustment before Feb 14"]}`,
	},
}

// PriceDetectiveAgent 降价检测
type PriceDetectiveAgent struct{ *base }

// NewPriceDetectiveAgent 创建降价检测 Agent
func NewPriceDetectiveAgent(deps Deps) (*PriceDetectiveAgent, error) {
	b, err := newBase(priceDetectiveDefinition, deps)
	if err != nil {
		return nil, err
	}
	return &PriceDetectiveAgent{b}, nil
}

// CheckPriceDrops 检查购买之后是否降价
func (a *PriceDetectiveAgent) CheckPriceDrops(ctx context.Context, purchaseID, userID string) *agent.Result {
	if !required(purchaseID) {
		return a.missing("purchase_id")
	}
	return a.Execute(ctx, PriceDropInput(purchaseID, userID))
}

// PriceDropInput 构造降价检查的输入
func PriceDropInput(purchaseID, userID string) agent.Input {
	return agent.Input{
		Prompt:  "Check whether the price of purchase " + purchaseID + " has dropped since it was bought and whether the difference can be claimed.",
		Context: map[string]any{"purchase_id": purchaseID},
		UserID:  userID,
	}
}

// CheckPriceDropsAnswer CheckPriceDrops 的类型化版本
func (a *PriceDetectiveAgent) CheckPriceDropsAnswer(ctx context.Context, purchaseID, userID string) (PriceAnswer, *agent.Result, error) {
	return decode[PriceAnswer](a.base, a.CheckPriceDrops(ctx, purchaseID, userID))
}

package specialists

import (
	"context"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/tools"
)

// DuplicateWindowDays FindDuplicateCharges 默认回看天数
const DuplicateWindowDays = 90

var recurrentOptimizerDefinition = definition{
	name:        NameRecurrentOptimizer,
	description: "Spots recurring spend, subscriptions and duplicate charges.",
	tools:       []string{tools.GetPurchase, tools.ListPurchases, tools.ListSubscriptions},
	schema:      RecurrenceSchema,
	prompt: systemPrompt{
		Role:     "You are a recurring-spend optimizer.",
		Identity: "You look at a user's purchase history and subscriptions to find repeat purchases, forgotten subscriptions and charges that were billed twice.",
		Policies: []string{
			"Use get_purchase for the purchase in question, then list_purchases filtered by its merchant to see how often it repeats.",
			"Call list_subscriptions to compare against known subscriptions and their monthly_cost.",
			"Treat two charges from the same merchant for the same amount within 3 days as a possible duplicate.",
			"potential_savings is a monthly amount in the purchase currency.",
		},
		OutputRules: commonOutputRules,
		Shape: `{"is_recurring": true, "frequency": "monthly", "potential_savings": 12.99,
 "duplicates": [{"merchant": "Streamly", "amount": 12.99, "purchase_ids": ["p1", "p2"]}],
 "recommendations": ["Cancel the second Streamly plan"]}`,
	},
}

// RecurrentOptimizerAgent 周期性消费分析
type RecurrentOptimizerAgent struct{ *base }

// NewRecurrentOptimizerAgent 创建周期性消费 Agent
func NewRecurrentOptimizerAgent(deps Deps) (*RecurrentOptimizerAgent, error) {
	b, err := newBase(recurrentOptimizerDefinition, deps)
	if err != nil {
		return nil, err
	}
	return &RecurrentOptimizerAgent{b}, nil
}

// AnalyzeRecurrence 判断一笔购买是否属于周期性消费
func (a *RecurrentOptimizerAgent) AnalyzeRecurrence(ctx context.Context, purchaseID, userID string) *agent.Result {
	if !required(purchaseID) {
		return a.missing("purchase_id")
	}
	return a.Execute(ctx, RecurrenceInput(purchaseID, userID))
}

// RecurrenceInput 构造周期性分析的输入
func RecurrenceInput(purchaseID, userID string) agent.Input {
	return agent.Input{
		Prompt:  "Determine whether purchase " + purchaseID + " is part of a recurring pattern and how the user could spend less on it.",
		Context: map[string]any{"purchase_id": purchaseID},
		UserID:  userID,
	}
}

// AnalyzeRecurrenceAnswer AnalyzeRecurrence 的类型化版本
func (a *RecurrentOptimizerAgent) AnalyzeRecurrenceAnswer(ctx context.Context, purchaseID, userID string) (RecurrenceAnswer, *agent.Result, error) {
	return decode[RecurrenceAnswer](a.base, a.AnalyzeRecurrence(ctx, purchaseID, userID))
}

// FindDuplicateCharges 查找最近的重复扣费
func (a *RecurrentOptimizerAgent) FindDuplicateCharges(ctx context.Context, userID string) *agent.Result {
	if !required(userID) {
		return a.missing("user_id")
	}
	return a.Execute(ctx, agent.Input{
		Prompt:  "Review the user's recent purchases and subscriptions and list every charge that looks duplicated.",
		Context: map[string]any{"days": DuplicateWindowDays},
		UserID:  userID,
	})
}

// FindDuplicateChargesAnswer FindDuplicateCharges 的类型化版本
func (a *RecurrentOptimizerAgent) FindDuplicateChargesAnswer(ctx context.Context, userID string) (RecurrenceAnswer, *agent.Result, error) {
	return decode[RecurrenceAnswer](a.base, a.FindDuplicateCharges(ctx, userID))
}

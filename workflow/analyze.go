package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/specialists"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Analysis 三个 Agent 各自的答案数据
type Analysis struct {
	ReturnPolicy  any `json:"return_policy"`
	PriceTracking any `json:"price_tracking"`
	Recurrence    any `json:"recurrence"`
}

// PurchaseAnalysis 单笔购买的综合分析
type PurchaseAnalysis struct {
	PurchaseID      string        `json:"purchase_id"`
	UserID          string        `json:"user_id,omitempty"`
	Analysis        Analysis      `json:"analysis"`
	Recommendations []string      `json:"recommendations"`
	Errors          []TaskError   `json:"errors"`
	Success         bool          `json:"success"`
	TokensUsed      int           `json:"tokens_used"`
	Cost            float64       `json:"cost"`
	Duration        time.Duration `json:"duration"`
}

// AnalyzePurchase 对同一笔购买并发运行退货、降价、周期性三项分析，并合并建议
func (o *Orchestrator) AnalyzePurchase(ctx context.Context, purchaseID, userID string) *PurchaseAnalysis {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "workflow.analyze_purchase")
	span.SetAttributes(attribute.String("purchase.id", purchaseID))
	defer span.End()

	out := &PurchaseAnalysis{
		PurchaseID:      purchaseID,
		UserID:          userID,
		Recommendations: []string{},
		Errors:          []TaskError{},
	}
	if strings.TrimSpace(purchaseID) == "" {
		out.Errors = append(out.Errors, TaskError{Index: -1, Message: "missing argument: purchase_id", Kind: agent.ErrorKindInvalidInput})
		out.Duration = time.Since(start)
		return out
	}

	tasks := []Task{
		{Agent: o.agents.ReturnPolicy, Input: specialists.ReturnEligibilityInput(purchaseID, userID)},
		{Agent: o.agents.PriceDetective, Input: specialists.PriceDropInput(purchaseID, userID)},
		{Agent: o.agents.RecurrentOptimizer, Input: specialists.RecurrenceInput(purchaseID, userID)},
	}
	batch := o.ExecuteParallel(ctx, tasks)

	slots := []*any{&out.Analysis.ReturnPolicy, &out.Analysis.PriceTracking, &out.Analysis.Recurrence}
	var recs [][]string
	for _, r := range batch.Results {
		*slots[r.Index] = r.Result.Data
		out.TokensUsed += r.Result.TokensUsed
		out.Cost += r.Result.Cost
		recs = append(recs, specialists.Recommendations(r.Result.Data))
	}
	out.Recommendations = MergeRecommendations(recs...)
	out.Errors = batch.Errors
	out.Success = batch.Success
	out.Duration = time.Since(start)

	o.logger.Info("purchase analyzed",
		zap.String("purchase_id", purchaseID),
		zap.Bool("success", out.Success),
		zap.Int("recommendations", len(out.Recommendations)),
		zap.Int("tokens", out.TokensUsed),
		zap.Duration("duration", out.Duration),
	)
	return out
}

// MergeRecommendations 按顺序合并建议，忽略大小写与首尾空白去重，保留首次出现的写法
func MergeRecommendations(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, rec := range list {
			trimmed := strings.TrimSpace(rec)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, trimmed)
		}
	}
	return out
}

// ReceiptToWarranty 解析小票并为其中的商品登记保修
func (o *Orchestrator) ReceiptToWarranty(ctx context.Context, receiptID, userID string) *WorkflowResult {
	if strings.TrimSpace(receiptID) == "" {
		failed := agent.FailedResult(executorName(o.agents.Receipt), agent.ErrorKindInvalidInput, "missing argument: receipt_id")
		return &WorkflowResult{Results: []*agent.Result{failed}, Context: map[string]any{}, FailedStep: 0, Error: failed.Error}
	}
	steps := []Step{
		{Agent: o.agents.Receipt, Input: specialists.ReceiptInput(receiptID, userID)},
		{Agent: o.agents.Warranty, Input: specialists.ReceiptWarrantiesInput(userID)},
	}
	return o.ExecuteWorkflow(ctx, steps, map[string]any{"receipt_id": receiptID})
}

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/types"
	"github.com/arvalo/arvalo/workflow"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// =============================================================================
// 🔀 Workflow Handler
// =============================================================================

// Orchestrator 编排能力，*workflow.Orchestrator 实现了该接口
type Orchestrator interface {
	AnalyzePurchase(ctx context.Context, purchaseID, userID string) *workflow.PurchaseAnalysis
	ReceiptToWarranty(ctx context.Context, receiptID, userID string) *workflow.WorkflowResult
	ExecuteParallel(ctx context.Context, tasks []workflow.Task) *workflow.ParallelResult
	ExecuteWorkflow(ctx context.Context, steps []workflow.Step, initial map[string]any) *workflow.WorkflowResult
}

// maxBatchSize 单个请求内允许的任务/步骤数
const maxBatchSize = 16

// WorkflowHandler 多 Agent 编排端点
type WorkflowHandler struct {
	orchestrator Orchestrator
	agents       AgentDirectory
	logger       *zap.Logger
}

// ReceiptToWarrantyRequest 小票转保修请求
type ReceiptToWarrantyRequest struct {
	ReceiptID string `json:"receipt_id"`
	UserID    string `json:"user_id"`
}

// AgentTask 以名称引用 Agent 的任务
type AgentTask struct {
	Agent string `json:"agent"`
	AgentExecuteRequest
}

// ParallelRequest 并行批次请求
type ParallelRequest struct {
	Tasks []AgentTask `json:"tasks"`
}

// SequentialRequest 顺序工作流请求
type SequentialRequest struct {
	Steps   []AgentTask    `json:"steps"`
	Context map[string]any `json:"context,omitempty"`
}

// NewWorkflowHandler 创建编排处理器
func NewWorkflowHandler(orchestrator Orchestrator, agents AgentDirectory, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		orchestrator: orchestrator,
		agents:       agents,
		logger:       logger.With(zap.String("handler", "workflow")),
	}
}

// HandleAnalyzePurchase POST /v1/purchases/{id}/analyze?user_id=
//
// 部分任务失败时仍返回 200，失败项列在 data.errors 中；全部失败才按首个错误映射状态码。
func (h *WorkflowHandler) HandleAnalyzePurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := strings.TrimSpace(chi.URLParam(r, "id"))
	userID := r.URL.Query().Get("user_id")
	if purchaseID == "" {
		WriteError(w, types.NewInvalidRequestError("purchase id is required"), h.logger)
		return
	}

	out := h.orchestrator.AnalyzePurchase(r.Context(), purchaseID, userID)
	if !out.Success && len(out.Errors) > 0 && allFailed(out) {
		first := out.Errors[0]
		writeFailure(w, resultError(&agent.Result{ErrorKind: first.Kind, Error: first.Message}), out, h.logger)
		return
	}
	WriteSuccess(w, out)
}

func allFailed(a *workflow.PurchaseAnalysis) bool {
	return a.Analysis.ReturnPolicy == nil && a.Analysis.PriceTracking == nil && a.Analysis.Recurrence == nil
}

// HandleReceiptToWarranty POST /v1/workflows/receipt-to-warranty
func (h *WorkflowHandler) HandleReceiptToWarranty(w http.ResponseWriter, r *http.Request) {
	var req ReceiptToWarrantyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.ReceiptID) == "" {
		WriteError(w, types.NewInvalidRequestError("receipt_id is required"), h.logger)
		return
	}
	h.writeWorkflow(w, h.orchestrator.ReceiptToWarranty(r.Context(), req.ReceiptID, req.UserID))
}

// HandleParallel POST /v1/workflows/parallel
func (h *WorkflowHandler) HandleParallel(w http.ResponseWriter, r *http.Request) {
	var req ParallelRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	tasks := make([]workflow.Task, 0, len(req.Tasks))
	if apiErr := h.resolve(req.Tasks, func(exec agent.Executor, in agent.Input) {
		tasks = append(tasks, workflow.Task{Agent: exec, Input: in})
	}); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	// 并行任务彼此隔离，批次本身总是 200
	WriteSuccess(w, h.orchestrator.ExecuteParallel(r.Context(), tasks))
}

// HandleSequential POST /v1/workflows/sequential
func (h *WorkflowHandler) HandleSequential(w http.ResponseWriter, r *http.Request) {
	var req SequentialRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	steps := make([]workflow.Step, 0, len(req.Steps))
	if apiErr := h.resolve(req.Steps, func(exec agent.Executor, in agent.Input) {
		steps = append(steps, workflow.Step{Agent: exec, Input: in})
	}); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	h.writeWorkflow(w, h.orchestrator.ExecuteWorkflow(r.Context(), steps, req.Context))
}

// resolve 校验并按名称解析任务列表
func (h *WorkflowHandler) resolve(items []AgentTask, add func(agent.Executor, agent.Input)) *types.Error {
	if len(items) == 0 {
		return types.NewInvalidRequestError("at least one task is required")
	}
	if len(items) > maxBatchSize {
		return types.NewInvalidRequestError(fmt.Sprintf("at most %d tasks per request", maxBatchSize))
	}
	for i, item := range items {
		exec, ok := h.agents.Get(item.Agent)
		if !ok {
			return types.NewError(types.ErrAgentNotFound, fmt.Sprintf("task %d: unknown agent %q", i, item.Agent))
		}
		if strings.TrimSpace(item.Prompt) == "" {
			return types.NewInvalidRequestError(fmt.Sprintf("task %d: prompt is required", i))
		}
		add(exec, agent.Input{
			Prompt:        item.Prompt,
			Context:       item.Context,
			MaxIterations: item.MaxIterations,
			UserID:        item.UserID,
		})
	}
	return nil
}

func (h *WorkflowHandler) writeWorkflow(w http.ResponseWriter, res *workflow.WorkflowResult) {
	if res.Success {
		WriteSuccess(w, res)
		return
	}
	failed := &agent.Result{ErrorKind: agent.ErrorKindInternal, Error: res.Error}
	if res.FailedStep >= 0 && res.FailedStep < len(res.Results) {
		failed = res.Results[res.FailedStep]
	}
	writeFailure(w, resultError(failed), res, h.logger)
}

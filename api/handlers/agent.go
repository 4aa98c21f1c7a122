package handlers

import (
	"net/http"
	"strings"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// =============================================================================
// 🤖 Agent Handler
// =============================================================================

// AgentDirectory 按名称查找 Agent，specialists.Set 实现了该接口
type AgentDirectory interface {
	Get(name string) (agent.Executor, bool)
	Names() []string
}

// AgentHandler 单个 Agent 的直接执行
type AgentHandler struct {
	agents AgentDirectory
	logger *zap.Logger
}

// AgentInfo Agent 信息
type AgentInfo struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

// AgentExecuteRequest Agent 执行请求
type AgentExecuteRequest struct {
	Prompt        string         `json:"prompt"`
	Context       map[string]any `json:"context,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(agents AgentDirectory, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{agents: agents, logger: logger.With(zap.String("handler", "agent"))}
}

// HandleList GET /v1/agents
func (h *AgentHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	names := h.agents.Names()
	out := make([]AgentInfo, 0, len(names))
	for _, name := range names {
		info := AgentInfo{Name: name, Tools: []string{}}
		if a, ok := h.agents.Get(name); ok {
			if t, ok := a.(interface{ Tools() []string }); ok {
				info.Tools = t.Tools()
			}
		}
		out = append(out, info)
	}
	WriteSuccess(w, out)
}

// HandleExecute POST /v1/agents/{name}/execute
func (h *AgentHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	exec, ok := h.agents.Get(name)
	if !ok {
		WriteError(w, types.NewError(types.ErrAgentNotFound, "unknown agent: "+name), h.logger)
		return
	}

	var req AgentExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteError(w, types.NewInvalidRequestError("prompt is required"), h.logger)
		return
	}
	if req.MaxIterations < 0 {
		WriteError(w, types.NewInvalidRequestError("max_iterations must not be negative"), h.logger)
		return
	}

	res := exec.Execute(r.Context(), agent.Input{
		Prompt:        req.Prompt,
		Context:       req.Context,
		MaxIterations: req.MaxIterations,
		UserID:        req.UserID,
	})
	writeResult(w, res, h.logger)
}

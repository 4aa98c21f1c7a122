package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeExecutor struct {
	name  string
	tools []string

	mu     sync.Mutex
	inputs []agent.Input
	result func(agent.Input) *agent.Result
}

func (f *fakeExecutor) Name() string    { return f.name }
func (f *fakeExecutor) Tools() []string { return f.tools }

func (f *fakeExecutor) Execute(_ context.Context, in agent.Input) *agent.Result {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.result != nil {
		return f.result(in)
	}
	return &agent.Result{Success: true, Agent: f.name, State: agent.StateComplete, Data: map[string]any{"ok": true}}
}

func (f *fakeExecutor) lastInput() agent.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

type fakeDirectory []*fakeExecutor

func (d fakeDirectory) Get(name string) (agent.Executor, bool) {
	for _, e := range d {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}

func (d fakeDirectory) Names() []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.name
	}
	return out
}

// decodeEnvelope 解析统一响应，data 解到 dst（可为 nil）
func decodeEnvelope(t *testing.T, body io.Reader, dst any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&raw))
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}

// =============================================================================
// 🧪 AgentHandler
// =============================================================================

func newAgentRouter(dir fakeDirectory) http.Handler {
	h := NewAgentHandler(dir, nil)
	r := chi.NewRouter()
	r.Get("/v1/agents", h.HandleList)
	r.Post("/v1/agents/{name}/execute", h.HandleExecute)
	return r
}

func TestAgentHandler_List(t *testing.T) {
	dir := fakeDirectory{
		{name: "receipt", tools: []string{"get_receipt", "save_purchase"}},
		{name: "warranty"},
	}
	w := httptest.NewRecorder()
	newAgentRouter(dir).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var infos []AgentInfo
	resp := decodeEnvelope(t, w.Body, &infos)
	assert.True(t, resp.Success)
	require.Len(t, infos, 2)
	assert.Equal(t, "receipt", infos[0].Name)
	assert.Equal(t, []string{"get_receipt", "save_purchase"}, infos[0].Tools)
	assert.Empty(t, infos[1].Tools)
}

func TestAgentHandler_Execute(t *testing.T) {
	exec := &fakeExecutor{name: "return-policy"}
	body := `{"prompt":"can I return it?","context":{"purchase_id":"p1"},"max_iterations":3,"user_id":"u1"}`

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/agents/return-policy/execute", strings.NewReader(body))
	newAgentRouter(fakeDirectory{exec}).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var res agent.Result
	resp := decodeEnvelope(t, w.Body, &res)
	assert.True(t, resp.Success)
	assert.True(t, res.Success)

	in := exec.lastInput()
	assert.Equal(t, "can I return it?", in.Prompt)
	assert.Equal(t, "p1", in.Context["purchase_id"])
	assert.Equal(t, 3, in.MaxIterations)
	assert.Equal(t, "u1", in.UserID)
}

func TestAgentHandler_ExecuteErrors(t *testing.T) {
	failing := &fakeExecutor{name: "price-detective", result: func(agent.Input) *agent.Result {
		return agent.FailedResult("price-detective", agent.ErrorKindTimeout, "execution deadline exceeded")
	}}
	malformed := &fakeExecutor{name: "warranty", result: func(agent.Input) *agent.Result {
		res := agent.FailedResult("warranty", agent.ErrorKindMalformedAnswer, "answer does not match schema")
		res.Data = "not json"
		return res
	}}
	dir := fakeDirectory{failing, malformed, {name: "receipt"}}

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown agent", "/v1/agents/nope/execute", `{"prompt":"x"}`, http.StatusNotFound, "AGENT_NOT_FOUND"},
		{"empty body", "/v1/agents/receipt/execute", ``, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", "/v1/agents/receipt/execute", `{"prompt":"x","extra":1}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"blank prompt", "/v1/agents/receipt/execute", `{"prompt":"  "}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"negative iterations", "/v1/agents/receipt/execute", `{"prompt":"x","max_iterations":-1}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"timeout", "/v1/agents/price-detective/execute", `{"prompt":"x"}`, http.StatusGatewayTimeout, "TIMEOUT"},
		{"malformed answer", "/v1/agents/warranty/execute", `{"prompt":"x"}`, http.StatusUnprocessableEntity, "MALFORMED_ANSWER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			w := httptest.NewRecorder()
			newAgentRouter(dir).ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, body))

			assert.Equal(t, tt.wantCode, w.Code)
			resp := decodeEnvelope(t, w.Body, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"`+strings.Repeat("a", 64)+`"}`))
	r.Body = http.MaxBytesReader(w, r.Body, 16)

	var req AgentExecuteRequest
	require.Error(t, DecodeJSONBody(w, r, &req, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// =============================================================================
// 🧪 WorkflowHandler
// =============================================================================

type fakeOrchestrator struct {
	analysis   *workflow.PurchaseAnalysis
	sequential *workflow.WorkflowResult

	gotPurchase, gotUser string
	gotTasks             []workflow.Task
	gotSteps             []workflow.Step
	gotContext           map[string]any
}

func (f *fakeOrchestrator) AnalyzePurchase(_ context.Context, purchaseID, userID string) *workflow.PurchaseAnalysis {
	f.gotPurchase, f.gotUser = purchaseID, userID
	return f.analysis
}

func (f *fakeOrchestrator) ReceiptToWarranty(_ context.Context, receiptID, userID string) *workflow.WorkflowResult {
	f.gotPurchase, f.gotUser = receiptID, userID
	return f.sequential
}

func (f *fakeOrchestrator) ExecuteParallel(_ context.Context, tasks []workflow.Task) *workflow.ParallelResult {
	f.gotTasks = tasks
	return &workflow.ParallelResult{Success: true, Results: []workflow.TaskResult{}, Errors: []workflow.TaskError{}}
}

func (f *fakeOrchestrator) ExecuteWorkflow(_ context.Context, steps []workflow.Step, initial map[string]any) *workflow.WorkflowResult {
	f.gotSteps, f.gotContext = steps, initial
	return f.sequential
}

func newWorkflowRouter(o *fakeOrchestrator, dir fakeDirectory) http.Handler {
	h := NewWorkflowHandler(o, dir, nil)
	r := chi.NewRouter()
	r.Post("/v1/purchases/{id}/analyze", h.HandleAnalyzePurchase)
	r.Post("/v1/workflows/receipt-to-warranty", h.HandleReceiptToWarranty)
	r.Post("/v1/workflows/parallel", h.HandleParallel)
	r.Post("/v1/workflows/sequential", h.HandleSequential)
	return r
}

func TestWorkflowHandler_AnalyzePurchase(t *testing.T) {
	t.Run("partial failure is still 200", func(t *testing.T) {
		o := &fakeOrchestrator{analysis: &workflow.PurchaseAnalysis{
			PurchaseID:      "p1",
			Analysis:        workflow.Analysis{ReturnPolicy: map[string]any{"eligible": true}},
			Recommendations: []string{"Return before 2026-11-01"},
			Errors:          []workflow.TaskError{{Index: 1, Agent: "price-detective", Message: "model down", Kind: agent.ErrorKindModel}},
		}}
		w := httptest.NewRecorder()
		newWorkflowRouter(o, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/purchases/p1/analyze?user_id=u1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var out workflow.PurchaseAnalysis
		resp := decodeEnvelope(t, w.Body, &out)
		assert.True(t, resp.Success)
		assert.Equal(t, "p1", o.gotPurchase)
		assert.Equal(t, "u1", o.gotUser)
		assert.Len(t, out.Errors, 1)
		assert.Equal(t, []string{"Return before 2026-11-01"}, out.Recommendations)
	})

	t.Run("total failure maps the first error", func(t *testing.T) {
		o := &fakeOrchestrator{analysis: &workflow.PurchaseAnalysis{
			PurchaseID: "p1",
			Errors: []workflow.TaskError{
				{Index: 0, Message: "model down", Kind: agent.ErrorKindModel},
				{Index: 1, Message: "model down", Kind: agent.ErrorKindModel},
				{Index: 2, Message: "model down", Kind: agent.ErrorKindModel},
			},
		}}
		w := httptest.NewRecorder()
		newWorkflowRouter(o, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/purchases/p1/analyze", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeEnvelope(t, w.Body, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "UPSTREAM_ERROR", resp.Error.Code)
		assert.True(t, resp.Error.Retryable)
	})
}

func TestWorkflowHandler_ReceiptToWarranty(t *testing.T) {
	failed := agent.FailedResult("warranty", agent.ErrorKindModel, "upstream 503")
	o := &fakeOrchestrator{sequential: &workflow.WorkflowResult{
		Results:    []*agent.Result{{Success: true, Agent: "receipt"}, failed},
		FailedStep: 1,
		Error:      "step 1 (warranty) failed: upstream 503",
	}}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/workflows/receipt-to-warranty", strings.NewReader(`{"receipt_id":"r1","user_id":"u1"}`))
	newWorkflowRouter(o, nil).ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var out workflow.WorkflowResult
	resp := decodeEnvelope(t, w.Body, &out)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, out.FailedStep)
	assert.Equal(t, "r1", o.gotPurchase)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/v1/workflows/receipt-to-warranty", strings.NewReader(`{"user_id":"u1"}`))
	newWorkflowRouter(o, nil).ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandler_ParallelResolvesAgents(t *testing.T) {
	dir := fakeDirectory{{name: "receipt"}, {name: "warranty"}}
	o := &fakeOrchestrator{}

	body := `{"tasks":[{"agent":"receipt","prompt":"a"},{"agent":"warranty","prompt":"b","user_id":"u2"}]}`
	w := httptest.NewRecorder()
	newWorkflowRouter(o, dir).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/workflows/parallel", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, o.gotTasks, 2)
	assert.Equal(t, "warranty", o.gotTasks[1].Agent.Name())
	assert.Equal(t, "u2", o.gotTasks[1].Input.UserID)

	w = httptest.NewRecorder()
	body = `{"tasks":[{"agent":"ghost","prompt":"a"}]}`
	newWorkflowRouter(o, dir).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/workflows/parallel", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	newWorkflowRouter(o, dir).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/workflows/parallel", strings.NewReader(`{"tasks":[]}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandler_Sequential(t *testing.T) {
	dir := fakeDirectory{{name: "receipt"}, {name: "warranty"}}
	o := &fakeOrchestrator{sequential: &workflow.WorkflowResult{Success: true, FailedStep: -1, Context: map[string]any{}}}

	body := `{"steps":[{"agent":"receipt","prompt":"parse"},{"agent":"warranty","prompt":"register"}],"context":{"receipt_id":"r9"}}`
	w := httptest.NewRecorder()
	newWorkflowRouter(o, dir).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/workflows/sequential", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, o.gotSteps, 2)
	assert.Equal(t, "receipt", o.gotSteps[0].Agent.Name())
	assert.Equal(t, "r9", o.gotContext["receipt_id"])
}

// =============================================================================
// 🧪 HealthHandler
// =============================================================================

type staticCheck struct {
	name string
	err  error
}

func (c staticCheck) Name() string                { return c.name }
func (c staticCheck) Check(context.Context) error { return c.err }

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("1.2.3", nil)

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.RegisterCheck(NewPingCheck("database", func(context.Context) error { return nil }))
	w = httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	h.RegisterCheck(staticCheck{name: "cache", err: assert.AnError})
	w = httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.Equal(t, "fail", status.Checks["cache"].Status)
	assert.Equal(t, assert.AnError.Error(), status.Checks["cache"].Message)
}

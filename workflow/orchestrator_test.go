package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/agent/specialists"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent 按函数返回结果的 Executor
type fakeAgent struct {
	name string
	fn   func(ctx context.Context, in agent.Input) *agent.Result

	mu     sync.Mutex
	inputs []agent.Input
}

func newFake(name string, fn func(ctx context.Context, in agent.Input) *agent.Result) *fakeAgent {
	return &fakeAgent{name: name, fn: fn}
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Execute(ctx context.Context, in agent.Input) *agent.Result {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return f.fn(ctx, in)
}

func (f *fakeAgent) Inputs() []agent.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Input(nil), f.inputs...)
}

func succeed(name string, data any) *fakeAgent {
	return newFake(name, func(context.Context, agent.Input) *agent.Result {
		return &agent.Result{Success: true, Data: data, Agent: name, State: agent.StateComplete, TokensUsed: 10, Cost: 0.5}
	})
}

func fail(name, msg string) *fakeAgent {
	return newFake(name, func(context.Context, agent.Input) *agent.Result {
		return agent.FailedResult(name, agent.ErrorKindModel, msg)
	})
}

func panics(name string) *fakeAgent {
	return newFake(name, func(context.Context, agent.Input) *agent.Result { panic("kaboom") })
}

func newOrchestrator(agents Agents) *Orchestrator {
	return NewOrchestrator(agents, Options{})
}

func TestExecuteWorkflow_AbortsOnFailure(t *testing.T) {
	third := succeed("c", "never")
	var onErr *agent.Result
	steps := []Step{
		{Agent: succeed("a", map[string]any{"n": 1.0})},
		{Agent: fail("b", "model down"), OnError: func(r *agent.Result) { onErr = r }},
		{Agent: third},
	}

	res := newOrchestrator(Agents{}).ExecuteWorkflow(context.Background(), steps, nil)

	assert.False(t, res.Success)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, 1, res.FailedStep)
	assert.Contains(t, res.Error, "step 1 (b) failed: model down")
	require.NotNil(t, onErr)
	assert.Equal(t, "b", onErr.Agent)
	assert.Empty(t, third.Inputs())
	assert.Equal(t, map[string]any{"n": 1.0}, res.Context["a_result"])
}

func TestExecuteWorkflow_ThreadsContext(t *testing.T) {
	a := succeed("a", "A")
	b := succeed("b", map[string]any{"b": true})
	c := succeed("c", "C")
	steps := []Step{
		{Agent: a, Input: agent.Input{Prompt: "first", Context: map[string]any{"own": "a"}}},
		{Agent: b, OnSuccess: func(_ *agent.Result, wctx map[string]any) { wctx["injected"] = 42 }},
		{Agent: c, Input: agent.Input{Prompt: "third", Context: map[string]any{"seed": "override"}}},
	}

	res := newOrchestrator(Agents{}).ExecuteWorkflow(context.Background(), steps, map[string]any{"seed": "initial"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, -1, res.FailedStep)
	assert.Len(t, res.Results, 3)

	first := a.Inputs()[0]
	assert.Equal(t, "first", first.Prompt)
	assert.Equal(t, map[string]any{"seed": "initial", "own": "a"}, first.Context)

	second := b.Inputs()[0].Context
	assert.Equal(t, "A", second["a_result"])
	assert.NotContains(t, second, "own")

	third := c.Inputs()[0].Context
	assert.Equal(t, "A", third["a_result"])
	assert.Equal(t, map[string]any{"b": true}, third["b_result"])
	assert.Equal(t, 42, third["injected"])
	assert.Equal(t, "override", third["seed"])

	assert.Equal(t, "C", res.Context["c_result"])
	assert.Equal(t, "initial", res.Context["seed"])
}

func TestExecuteWorkflow_CancelledContext(t *testing.T) {
	a := succeed("a", "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newOrchestrator(Agents{}).ExecuteWorkflow(ctx, []Step{{Agent: a}}, nil)
	assert.False(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.Equal(t, agent.ErrorKindCanceled, res.Results[0].ErrorKind)
	assert.Equal(t, 0, res.FailedStep)
	assert.Empty(t, a.Inputs())
}

func TestExecuteWorkflow_ContainsPanics(t *testing.T) {
	steps := []Step{
		{Agent: succeed("a", "A"), OnSuccess: func(*agent.Result, map[string]any) { panic("hook") }},
		{Agent: panics("b")},
	}
	res := newOrchestrator(Agents{}).ExecuteWorkflow(context.Background(), steps, nil)
	assert.False(t, res.Success)
	require.Len(t, res.Results, 2)
	assert.Equal(t, agent.ErrorKindInternal, res.Results[1].ErrorKind)
	assert.Contains(t, res.Results[1].Error, "kaboom")
}

func TestExecuteWorkflow_NilAgent(t *testing.T) {
	res := newOrchestrator(Agents{}).ExecuteWorkflow(context.Background(), []Step{{}}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, agent.ErrorKindInternal, res.Results[0].ErrorKind)
}

func TestExecuteParallel_IsolatesFailures(t *testing.T) {
	tasks := []Task{
		{Agent: succeed("one", 1)},
		{Agent: panics("two")},
		{Agent: succeed("three", 3)},
	}
	res := newOrchestrator(Agents{}).ExecuteParallel(context.Background(), tasks)

	assert.False(t, res.Success)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 0, res.Results[0].Index)
	assert.Equal(t, "one", res.Results[0].Agent)
	assert.Equal(t, 2, res.Results[1].Index)
	assert.Equal(t, 3, res.Results[1].Result.Data)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "two", res.Errors[0].Agent)
	assert.Contains(t, res.Errors[0].Message, "kaboom")
}

func TestExecuteParallel_NoSiblingCancellation(t *testing.T) {
	slow := newFake("slow", func(ctx context.Context, _ agent.Input) *agent.Result {
		select {
		case <-time.After(30 * time.Millisecond):
			return &agent.Result{Success: true, Agent: "slow"}
		case <-ctx.Done():
			return agent.FailedResult("slow", agent.ErrorKindCanceled, ctx.Err().Error())
		}
	})
	res := newOrchestrator(Agents{}).ExecuteParallel(context.Background(), []Task{
		{Agent: fail("fast", "nope")},
		{Agent: slow},
	})
	require.Len(t, res.Results, 1)
	assert.Equal(t, "slow", res.Results[0].Agent)
	assert.Len(t, res.Errors, 1)
}

func TestExecuteParallel_MaxParallel(t *testing.T) {
	var running, peak atomic.Int32
	tracked := newFake("tracked", func(context.Context, agent.Input) *agent.Result {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return &agent.Result{Success: true}
	})

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Agent: tracked}
	}
	o := NewOrchestrator(Agents{}, Options{MaxParallel: 2})
	res := o.ExecuteParallel(context.Background(), tasks)

	assert.True(t, res.Success)
	assert.Len(t, res.Results, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Empty(t, res.Errors)
}

func TestExecuteParallel_Empty(t *testing.T) {
	res := newOrchestrator(Agents{}).ExecuteParallel(context.Background(), nil)
	assert.True(t, res.Success)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Errors)
}

func TestAnalyzePurchase(t *testing.T) {
	rp := succeed(specialists.NameReturnPolicy, map[string]any{
		"eligible": true, "recommendations": []any{"Return it by Friday", "Keep the receipt"},
	})
	pd := succeed(specialists.NamePriceDetective, map[string]any{
		"claimable": true, "recommendations": []any{"  keep the RECEIPT ", "Ask for a $20 adjustment"},
	})
	ro := succeed(specialists.NameRecurrentOptimizer, map[string]any{
		"is_recurring": false, "recommendations": []any{},
	})
	o := newOrchestrator(Agents{ReturnPolicy: rp, PriceDetective: pd, RecurrentOptimizer: ro})

	res := o.AnalyzePurchase(context.Background(), "p1", "u1")
	require.True(t, res.Success)
	assert.Equal(t, "p1", res.PurchaseID)
	assert.Equal(t, []string{"Return it by Friday", "Keep the receipt", "Ask for a $20 adjustment"}, res.Recommendations)
	assert.Equal(t, true, res.Analysis.ReturnPolicy.(map[string]any)["eligible"])
	assert.Equal(t, true, res.Analysis.PriceTracking.(map[string]any)["claimable"])
	assert.NotNil(t, res.Analysis.Recurrence)
	assert.Equal(t, 30, res.TokensUsed)
	assert.InDelta(t, 1.5, res.Cost, 1e-9)

	in := pd.Inputs()[0]
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, "p1", in.Context["purchase_id"])
}

func TestAnalyzePurchase_PartialFailure(t *testing.T) {
	o := newOrchestrator(Agents{
		ReturnPolicy:       succeed(specialists.NameReturnPolicy, map[string]any{"recommendations": []any{"a"}}),
		PriceDetective:     fail(specialists.NamePriceDetective, "scrape blocked"),
		RecurrentOptimizer: panics(specialists.NameRecurrentOptimizer),
	})
	res := o.AnalyzePurchase(context.Background(), "p1", "u1")
	assert.False(t, res.Success)
	assert.Equal(t, []string{"a"}, res.Recommendations)
	assert.Nil(t, res.Analysis.PriceTracking)
	assert.Nil(t, res.Analysis.Recurrence)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "scrape blocked", res.Errors[0].Message)
	assert.Equal(t, 2, res.Errors[1].Index)
}

func TestAnalyzePurchase_MissingPurchase(t *testing.T) {
	res := newOrchestrator(Agents{}).AnalyzePurchase(context.Background(), " ", "u1")
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, agent.ErrorKindInvalidInput, res.Errors[0].Kind)
}

func TestMergeRecommendations(t *testing.T) {
	got := MergeRecommendations([]string{"A", " b "}, nil, []string{"a", "", "C", "B"})
	assert.Equal(t, []string{"A", "b", "C"}, got)
	assert.Equal(t, []string{}, MergeRecommendations())
}

func TestReceiptToWarranty(t *testing.T) {
	receipt := succeed(specialists.NameReceipt, map[string]any{"merchant": "Acme", "purchase_ids": []any{"p1", "p2"}})
	warranty := succeed(specialists.NameWarranty, map[string]any{"has_warranty": true})
	o := newOrchestrator(Agents{Receipt: receipt, Warranty: warranty})

	res := o.ReceiptToWarranty(context.Background(), "r1", "u1")
	require.True(t, res.Success, res.Error)

	assert.Equal(t, "r1", receipt.Inputs()[0].Context["receipt_id"])
	wctx := warranty.Inputs()[0].Context
	assert.Equal(t, map[string]any{"merchant": "Acme", "purchase_ids": []any{"p1", "p2"}}, wctx[ResultKey(specialists.NameReceipt)])
	assert.Equal(t, "u1", warranty.Inputs()[0].UserID)

	missing := o.ReceiptToWarranty(context.Background(), "", "u1")
	assert.False(t, missing.Success)
	assert.Equal(t, 0, missing.FailedStep)
}

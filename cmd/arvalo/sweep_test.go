package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arvalo/arvalo/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	report *workflow.SweepReport
	err    error
	runs   int
}

func (f *fakeSweeper) Run(context.Context) (*workflow.SweepReport, error) {
	f.runs++
	return f.report, f.err
}

type sweepRecord struct {
	err                                 error
	checked, failed, claimable, skipped int
}

type fakeSweepRecorder struct {
	mu      sync.Mutex
	records []sweepRecord
}

func (f *fakeSweepRecorder) RecordSweep(err error, checked, failed, claimable, skipped int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, sweepRecord{err, checked, failed, claimable, skipped})
}

func TestRunSweepOnce(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sw := &fakeSweeper{report: &workflow.SweepReport{
			Candidates: 5, Checked: 4, Failed: 1, Skipped: 1,
			Claimable: []workflow.SweepHit{{PurchaseID: "p1", UserID: "u1"}},
		}}
		rec := &fakeSweepRecorder{}

		report, err := runSweepOnce(context.Background(), sw, rec, zap.NewNop())
		require.NoError(t, err)
		assert.Len(t, report.Claimable, 1)
		assert.Equal(t, []sweepRecord{{nil, 4, 1, 1, 1}}, rec.records)
	})

	t.Run("failure is recorded", func(t *testing.T) {
		boom := errors.New("db down")
		rec := &fakeSweepRecorder{}

		_, err := runSweepOnce(context.Background(), &fakeSweeper{err: boom}, rec, zap.NewNop())
		assert.ErrorIs(t, err, boom)
		require.Len(t, rec.records, 1)
		assert.ErrorIs(t, rec.records[0].err, boom)
	})

	t.Run("overlap is skipped silently", func(t *testing.T) {
		rec := &fakeSweepRecorder{}

		_, err := runSweepOnce(context.Background(), &fakeSweeper{err: workflow.ErrSweepRunning}, rec, zap.NewNop())
		assert.ErrorIs(t, err, workflow.ErrSweepRunning)
		assert.Empty(t, rec.records)
	})
}

func TestScheduleSweep(t *testing.T) {
	c := newCron(zap.NewNop())
	sw := &fakeSweeper{report: &workflow.SweepReport{}}
	rec := &fakeSweepRecorder{}

	_, err := scheduleSweep(context.Background(), c, sw, "every tuesday", rec, zap.NewNop())
	assert.ErrorContains(t, err, "invalid sweep schedule")

	ctx, cancel := context.WithCancel(context.Background())
	id, err := scheduleSweep(ctx, c, sw, "@every 6h", rec, zap.NewNop())
	require.NoError(t, err)

	job := c.Entry(id).Job
	require.NotNil(t, job)
	job.Run()
	assert.Equal(t, 1, sw.runs)
	assert.Len(t, rec.records, 1)

	// ctx 结束后不再执行
	cancel()
	job.Run()
	assert.Equal(t, 1, sw.runs)

	_, err = scheduleSweep(context.Background(), c, sw, "0 3 * * *", rec, zap.NewNop())
	assert.NoError(t, err)
}

func TestStopCron(t *testing.T) {
	c := newCron(zap.NewNop())
	c.Start()
	require.NoError(t, stopCron(context.Background(), c))
}

func TestPrintJSON(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, printJSON(cmd, map[string]int{"checked": 3}))
	assert.Equal(t, "{\n  \"checked\": 3\n}\n", buf.String())
}

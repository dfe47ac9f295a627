// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errFakeLaunch = errors.New("fake launch failure")

// fakeExecutor records every call and tracks how many calls are in flight.
type fakeExecutor struct {
	delay     time.Duration
	failOn    map[Command]bool
	mu        sync.Mutex
	calls     map[Command]int
	active    atomic.Int64
	maxActive atomic.Int64
	onExecute func()
}

func newFakeExecutor(delay time.Duration) *fakeExecutor {
	return &fakeExecutor{
		delay:  delay,
		failOn: make(map[Command]bool),
		calls:  make(map[Command]int),
	}
}

// Execute implements the Executor interface for fakeExecutor.
func (f *fakeExecutor) Execute(_ context.Context, c Command) (Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)

	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[c]++
	f.mu.Unlock()

	if f.onExecute != nil {
		f.onExecute()
	}

	time.Sleep(f.delay)

	if f.failOn[c] {
		return Result{}, errFakeLaunch
	}

	return NewResult([]byte(c), nil, 0), nil
}

// outcomeCollector is a thread-safe OutcomeHandler.
type outcomeCollector struct {
	mu       sync.Mutex
	outcomes map[int]Outcome
}

func newOutcomeCollector() *outcomeCollector {
	return &outcomeCollector{outcomes: make(map[int]Outcome)}
}

func (o *outcomeCollector) handle(_ context.Context, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.outcomes[out.Index] = out
}

func makeCommands(n int) []Command {
	cmds := make([]Command, n)
	for i := range cmds {
		cmds[i] = Command(fmt.Sprintf("cmd-%d", i))
	}

	return cmds
}

func TestNewPool_InvalidWorkers(t *testing.T) {
	for _, n := range []int{0, -1} {
		t.Run(fmt.Sprintf("workers=%d", n), func(t *testing.T) {
			exec := newFakeExecutor(0)

			p, err := NewPool(n, exec)
			require.ErrorIs(t, err, ErrInvalidWorkers)
			assert.Nil(t, p)
			assert.Empty(t, exec.calls, "nothing may be dispatched")
		})
	}
}

func TestNewPool_NilExecutor(t *testing.T) {
	p, err := NewPool(1, nil)
	require.ErrorIs(t, err, ErrNilExecutor)
	assert.Nil(t, p)
}

func TestPoolRun_ExactlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, workers := range []int{1, 2, 3, 8} {
		for _, m := range []int{0, 1, 5, 20} {
			t.Run(fmt.Sprintf("workers=%d/commands=%d", workers, m), func(t *testing.T) {
				exec := newFakeExecutor(time.Millisecond)
				collector := newOutcomeCollector()

				p, err := NewPool(workers, exec, WithOutcomeHandler(collector.handle))
				require.NoError(t, err)

				cmds := makeCommands(m)
				report := p.Run(context.Background(), cmds)

				assert.Equal(t, m, report.Dispatched)
				assert.Equal(t, StateComplete, p.State())
				assert.Len(t, collector.outcomes, m)

				for i, c := range cmds {
					assert.Equal(t, 1, exec.calls[c], "command %q dispatched more or less than once", c)
					assert.Equal(t, c, collector.outcomes[i].Command)
				}
			})
		}
	}
}

func TestPoolRun_DuplicateCommandsRunIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(0)
	p, err := NewPool(2, exec)
	require.NoError(t, err)

	report := p.Run(context.Background(), []Command{"same", "same", "same"})
	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, 3, exec.calls["same"])
}

func TestPoolRun_ConcurrencyBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			exec := newFakeExecutor(30 * time.Millisecond)
			p, err := NewPool(workers, exec)
			require.NoError(t, err)

			p.Run(context.Background(), makeCommands(12))

			assert.LessOrEqual(t, exec.maxActive.Load(), int64(workers))
			assert.Equal(t, int64(workers), exec.maxActive.Load(), "all slots should be used")
			assert.Equal(t, int64(0), exec.active.Load())
		})
	}
}

func TestPoolRun_MoreWorkersThanCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(20 * time.Millisecond)
	p, err := NewPool(10, exec)
	require.NoError(t, err)

	report := p.Run(context.Background(), makeCommands(3))
	assert.Equal(t, 3, report.Dispatched)
	assert.LessOrEqual(t, exec.maxActive.Load(), int64(3))
}

func TestPoolRun_Parallelism(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(100 * time.Millisecond)
	p, err := NewPool(2, exec)
	require.NoError(t, err)

	report := p.Run(context.Background(), makeCommands(2))
	assert.Less(t, report.Elapsed, 180*time.Millisecond, "expected parallel execution to be faster than serial")
}

func TestPoolRun_LaunchErrorDoesNotStopRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(0)
	exec.failOn["cmd-1"] = true

	collector := newOutcomeCollector()
	p, err := NewPool(1, exec, WithOutcomeHandler(collector.handle))
	require.NoError(t, err)

	report := p.Run(context.Background(), makeCommands(4))
	assert.Equal(t, 4, report.Dispatched)

	require.ErrorIs(t, collector.outcomes[1].Err, errFakeLaunch)
	assert.Equal(t, Result{}, collector.outcomes[1].Result)

	for _, i := range []int{0, 2, 3} {
		assert.NoError(t, collector.outcomes[i].Err)
		assert.Equal(t, KindStdOut, collector.outcomes[i].Result.Kind)
	}
}

func TestPoolRun_States(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(0)
	p, err := NewPool(2, exec)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, p.State())

	var seen sync.Map

	exec.onExecute = func() {
		seen.Store(p.State(), true)
	}

	p.Run(context.Background(), makeCommands(3))

	_, draining := seen.Load(StateDraining)
	assert.True(t, draining, "executions should observe the draining state")
	assert.Equal(t, StateComplete, p.State())
}

func TestPoolRun_CancelledContextStillDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := newFakeExecutor(time.Millisecond)
	p, err := NewPool(2, exec)
	require.NoError(t, err)

	report := p.Run(ctx, makeCommands(6))
	assert.Equal(t, 6, report.Dispatched)
}

func TestPoolRun_ConcurrentRunsAreSerialised(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := newFakeExecutor(5 * time.Millisecond)
	p, err := NewPool(2, exec)
	require.NoError(t, err)

	wg := &sync.WaitGroup{}

	for range 3 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			report := p.Run(context.Background(), makeCommands(4))
			assert.Equal(t, 4, report.Dispatched)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, exec.maxActive.Load(), int64(2))
	assert.Equal(t, 3, exec.calls["cmd-0"])
}

func TestPoolRun_NoOpCommandsNeverHang(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	p, err := NewPool(3, NewShellExecutor(binSh))
	require.NoError(t, err)

	cmds := []Command{"true", "true", "true", "true", "true"}

	for range 3 {
		done := make(chan Report)

		go func() { done <- p.Run(testContext(t), cmds) }()

		select {
		case report := <-done:
			assert.Equal(t, len(cmds), report.Dispatched)
			assert.Equal(t, StateComplete, p.State())
		case <-time.After(10 * time.Second):
			t.Fatal("run did not complete")
		}
	}
}

func TestPoolRun_EchoScenario(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	collector := newOutcomeCollector()
	p, err := NewPool(2, NewShellExecutor(binSh), WithOutcomeHandler(collector.handle))
	require.NoError(t, err)

	report := p.Run(testContext(t), []Command{"echo A", "echo B", "echo C"})
	assert.Equal(t, 3, report.Dispatched)

	for i, want := range []string{"A\n", "B\n", "C\n"} {
		o := collector.outcomes[i]
		require.NoError(t, o.Err)
		assert.Equal(t, KindStdOut, o.Result.Kind)
		assert.Equal(t, want, o.Result.String())
	}
}

func TestPoolRun_FailingExitDoesNotAbort(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	collector := newOutcomeCollector()
	p, err := NewPool(1, NewShellExecutor(binSh), WithOutcomeHandler(collector.handle))
	require.NoError(t, err)

	report := p.Run(testContext(t), []Command{"false", "true"})
	assert.Equal(t, 2, report.Dispatched)
	require.Len(t, collector.outcomes, 2)

	assert.Equal(t, KindEmpty, collector.outcomes[0].Result.Kind)
	assert.Equal(t, 1, collector.outcomes[0].Result.ExitCode)
	assert.Equal(t, KindEmpty, collector.outcomes[1].Result.Kind)
	assert.Equal(t, 0, collector.outcomes[1].Result.ExitCode)
}

func TestPoolRun_ImpossibleLaunch(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	collector := newOutcomeCollector()
	p, err := NewPool(2, NewShellExecutor(binSh), WithOutcomeHandler(collector.handle))
	require.NoError(t, err)

	report := p.Run(testContext(t), []Command{"echo before", "batchrun-no-such-program", "echo after"})
	assert.Equal(t, 3, report.Dispatched)

	require.ErrorIs(t, collector.outcomes[1].Err, ErrCouldNotStartProcess)
	assert.Equal(t, "before\n", collector.outcomes[0].Result.String())
	assert.Equal(t, "after\n", collector.outcomes[2].Result.String())
}

func TestPoolRun_ShellMissing(t *testing.T) {
	defer goleak.VerifyNone(t)

	collector := newOutcomeCollector()
	p, err := NewPool(2, NewShellExecutor("/not/a/real/shell"), WithOutcomeHandler(collector.handle))
	require.NoError(t, err)

	report := p.Run(testContext(t), []Command{"echo a", "echo b"})
	assert.Equal(t, 2, report.Dispatched)

	for _, o := range collector.outcomes {
		require.ErrorIs(t, o.Err, ErrCouldNotStartProcess)
	}
}

func TestLogOutcome(t *testing.T) {
	ctx := testContext(t)

	// Must not panic for any kind of outcome.
	LogOutcome(ctx, Outcome{Command: "a", Err: errFakeLaunch})
	LogOutcome(ctx, Outcome{Command: "b", Result: NewResult(nil, []byte("warn"), 0)})
	LogOutcome(ctx, Outcome{Command: "c", Result: NewResult([]byte("out"), nil, 0)})
	LogOutcome(ctx, Outcome{Command: "d", Result: NewResult(nil, nil, 1)})
}

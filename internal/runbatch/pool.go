// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrInvalidWorkers is returned by NewPool when the worker count is not positive.
	ErrInvalidWorkers = errors.New("worker count must be greater than zero")
	// ErrNilExecutor is returned by NewPool when no Executor is given.
	ErrNilExecutor = errors.New("executor must not be nil")
)

// State is the position of a Pool in its run.
type State int32

const (
	// StateIdle means no run has started.
	StateIdle State = iota
	// StateDraining means Commands are being admitted or are still running.
	StateDraining
	// StateComplete means every Command of the last run has returned.
	StateComplete
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	}

	return "unknown"
}

// Outcome is what happened to one dispatched Command.
type Outcome struct {
	Index    int           // Position of the Command in the input
	Command  Command       // The Command that was run
	Result   Result        // Captured output, zero if Err is set
	Err      error         // Non-nil if the process could not be run
	Duration time.Duration // Time spent in the Executor
}

// OutcomeHandler receives each Outcome as soon as its Command returns.
// It is called from the worker goroutine, so it runs concurrently with other handlers.
type OutcomeHandler func(ctx context.Context, o Outcome)

// Report summarises a completed run.
type Report struct {
	Dispatched int           // Number of Commands handed to the Executor
	Elapsed    time.Duration // Wall-clock time from the first admission to the last return
}

// Pool runs Commands through an Executor with at most Workers of them active at once.
type Pool struct {
	workers int
	exec    Executor
	handler OutcomeHandler
	sem     *semaphore.Weighted
	runMu   sync.Mutex
	state   atomic.Int32
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithOutcomeHandler replaces LogOutcome as the Outcome consumer.
func WithOutcomeHandler(h OutcomeHandler) PoolOption {
	return func(p *Pool) {
		if h != nil {
			p.handler = h
		}
	}
}

// NewPool returns an idle Pool admitting up to workers concurrent executions.
func NewPool(workers int, exec Executor, opts ...PoolOption) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}

	if exec == nil {
		return nil, ErrNilExecutor
	}

	p := &Pool{
		workers: workers,
		exec:    exec,
		handler: LogOutcome,
		sem:     semaphore.NewWeighted(int64(workers)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Workers returns the admission bound.
func (p *Pool) Workers() int {
	return p.workers
}

// State returns the current state of the Pool.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Run dispatches every Command exactly once, in input order as slots free up, and
// returns after all of them have returned. Failures of individual Commands are passed
// to the OutcomeHandler and never stop the run.
//
// Cancelling ctx does not interrupt the run. Concurrent calls on one Pool are serialised.
func (p *Pool) Run(ctx context.Context, cmds []Command) Report {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	logger := ctxlog.Logger(ctx).With("runnableType", "Pool")
	ctx = ctxlog.New(ctx, logger)

	p.state.Store(int32(StateIdle))

	logger.Debug("starting run", "commands", len(cmds), "workers", p.workers)

	start := time.Now()
	admit := context.WithoutCancel(ctx)
	wg := &sync.WaitGroup{}

	var dispatched atomic.Int64

	p.state.Store(int32(StateDraining))

	for i, c := range cmds {
		// admit is never done, so Acquire only returns once a slot is free.
		_ = p.sem.Acquire(admit, 1)

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer p.sem.Release(1)

			dispatched.Add(1)
			p.dispatch(ctx, i, c)
		}()
	}

	wg.Wait()

	p.state.Store(int32(StateComplete))

	report := Report{
		Dispatched: int(dispatched.Load()),
		Elapsed:    time.Since(start),
	}

	logger.Debug("run complete", "dispatched", report.Dispatched, "elapsed", report.Elapsed.String())

	return report
}

func (p *Pool) dispatch(ctx context.Context, i int, c Command) {
	ctx = ctxlog.With(ctx, "index", i)

	start := time.Now()
	res, err := p.exec.Execute(ctx, c)

	p.handler(ctx, Outcome{
		Index:    i,
		Command:  c,
		Result:   res,
		Err:      err,
		Duration: time.Since(start),
	})
}

// LogOutcome is the default OutcomeHandler. Launch failures are logged at warn level,
// stderr results at info level and everything else at debug level.
func LogOutcome(ctx context.Context, o Outcome) {
	logger := ctxlog.Logger(ctx).With(
		"command", string(o.Command),
		"duration", o.Duration.Round(time.Millisecond).String(),
	)

	switch {
	case o.Err != nil:
		logger.Warn("command could not be run", "error", o.Err)
	case o.Result.Kind == KindStdErr:
		logger.Info("command wrote to stderr", "exitCode", o.Result.ExitCode, "stderr", o.Result.String())
	case o.Result.Kind == KindStdOut:
		logger.Debug("command finished", "exitCode", o.Result.ExitCode, "stdout", o.Result.String())
	default:
		logger.Debug("command finished without output", "exitCode", o.Result.ExitCode)
	}
}

// Package executor replays bound workflow steps against a live automation
// target through the browser capability interface.
//
// Execution is a sequential state machine: each step moves through
// Pending -> Resolving -> Executing -> Completed | Failed, and step N+1
// never starts before step N reaches a terminal state. There is no
// intra-replay concurrency and no implicit per-step retry.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/syndicate/internal/browser"
	"github.com/roach88/syndicate/internal/workflow"
)

// StepState is the lifecycle state of one step during replay.
type StepState string

const (
	StatePending   StepState = "pending"
	StateResolving StepState = "resolving"
	StateExecuting StepState = "executing"
	StateCompleted StepState = "completed"
	StateFailed    StepState = "failed"
)

// Outcome records the terminal state of one executed step.
type Outcome struct {
	Index int
	Step  workflow.Step
	State StepState
	Err   error
}

// Defaults. Individual steps override the timeout via TimeoutMs.
const (
	DefaultStepTimeout = 10 * time.Second
	waitPollInterval   = 100 * time.Millisecond
)

// Executor drives one replay at a time against a single driver.
type Executor struct {
	driver       browser.Driver
	stepTimeout  time.Duration
	pollInterval time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithStepTimeout overrides the default per-step timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithPollInterval overrides the wait_for polling cadence (tests).
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// New creates an Executor bound to driver.
func New(driver browser.Driver, opts ...Option) *Executor {
	e := &Executor{
		driver:       driver,
		stepTimeout:  DefaultStepTimeout,
		pollInterval: waitPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays steps strictly in order. It stops at the first failed step
// and returns the outcomes accumulated so far together with the failure.
// Steps after a failed one remain Pending and are not included.
//
// All step values must be literal; replay never resolves placeholders.
func (e *Executor) Run(ctx context.Context, steps []workflow.Step) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("replay cancelled at step %d: %w", i, err)
		}
		if workflow.HasTokens(step.Value) {
			err := fmt.Errorf("step %d: unresolved placeholder in value %q", i, step.Value)
			outcomes = append(outcomes, Outcome{Index: i, Step: step, State: StateFailed, Err: err})
			return outcomes, err
		}

		slog.Debug("executing step",
			"index", i,
			"action", step.Action,
			"selector", step.Selector,
		)

		if err := e.runStep(ctx, i, step); err != nil {
			outcomes = append(outcomes, Outcome{Index: i, Step: step, State: StateFailed, Err: err})
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{Index: i, Step: step, State: StateCompleted})
	}
	return outcomes, nil
}

// runStep executes one step to a terminal state.
func (e *Executor) runStep(ctx context.Context, idx int, step workflow.Step) error {
	timeout := e.stepTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}

	switch step.Action {
	case workflow.ActionNavigate:
		if err := e.driver.Navigate(ctx, step.Value, timeout); err != nil {
			return &NavigationError{URL: step.Value, StepIndex: idx, Err: err}
		}
		return nil

	case workflow.ActionWaitFor:
		return e.waitFor(ctx, idx, step, timeout)

	case workflow.ActionClick, workflow.ActionType, workflow.ActionSelect, workflow.ActionUpload:
		// Resolving: selector -> element handle.
		el, err := e.driver.Locate(ctx, step.Selector, timeout)
		if err != nil {
			return &ElementNotFoundError{Selector: step.Selector, StepIndex: idx, Err: err}
		}
		// Executing: act on the handle.
		switch step.Action {
		case workflow.ActionClick:
			err = el.Click(ctx)
		case workflow.ActionType:
			err = el.Type(ctx, step.Value)
		case workflow.ActionSelect:
			err = el.Select(ctx, step.Value)
		case workflow.ActionUpload:
			err = el.Upload(ctx, step.Value)
		}
		if err != nil {
			return fmt.Errorf("step %d: %s %q: %w", idx, step.Action, step.Selector, err)
		}
		return nil

	default:
		return fmt.Errorf("step %d: unknown action %q", idx, step.Action)
	}
}

// waitFor is the blocking barrier: execution halts until the expected text
// is visible in the selector or the timeout elapses.
func (e *Executor) waitFor(ctx context.Context, idx int, step workflow.Step, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &SuccessNotObservedError{
				Selector:  step.Selector,
				Expected:  step.ExpectText,
				StepIndex: idx,
			}
		}

		el, err := e.driver.Locate(ctx, step.Selector, remaining)
		if err == nil {
			text, terr := el.Text(ctx)
			if terr == nil && strings.Contains(text, step.ExpectText) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("step %d: wait_for cancelled: %w", idx, ctx.Err())
		case <-time.After(e.pollInterval):
		}
	}
}

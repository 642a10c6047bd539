package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syndicate/internal/browser/browsertest"
	"github.com/roach88/syndicate/internal/workflow"
)

func fastExec(d *browsertest.Driver) *Executor {
	return New(d, WithStepTimeout(50*time.Millisecond), WithPollInterval(time.Millisecond))
}

func TestRun_ExecutesStepsInOrder(t *testing.T) {
	d := browsertest.New()
	d.Install("#title")
	d.Install("#submit")
	banner := d.Install(".flash")
	banner.TextValue = "Listing saved"

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionNavigate, Value: "https://example.com/new"},
		{Order: 2, Action: workflow.ActionType, Selector: "#title", Value: "Sunny Flat"},
		{Order: 3, Action: workflow.ActionClick, Selector: "#submit"},
		{Order: 4, Action: workflow.ActionWaitFor, Selector: ".flash", ExpectText: "saved", TimeoutMs: 50},
	}

	outcomes, err := fastExec(d).Run(context.Background(), steps)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.Equal(t, StateCompleted, o.State)
	}

	calls := d.Calls()
	require.Len(t, calls, 3) // wait_for performs no action
	assert.Equal(t, "navigate", calls[0].Op)
	assert.Equal(t, "type", calls[1].Op)
	assert.Equal(t, "click", calls[2].Op)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	d := browsertest.New()
	// #missing never installed; step 2 fails, step 3 never runs.
	d.Install("#after")

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionNavigate, Value: "https://example.com"},
		{Order: 2, Action: workflow.ActionClick, Selector: "#missing"},
		{Order: 3, Action: workflow.ActionClick, Selector: "#after"},
	}

	outcomes, err := fastExec(d).Run(context.Background(), steps)
	require.Error(t, err)

	var enf *ElementNotFoundError
	require.True(t, errors.As(err, &enf))
	assert.Equal(t, "#missing", enf.Selector)
	assert.Equal(t, 1, enf.StepIndex)

	require.Len(t, outcomes, 2)
	assert.Equal(t, StateCompleted, outcomes[0].State)
	assert.Equal(t, StateFailed, outcomes[1].State)

	// The step after the failure must not have acted.
	for _, c := range d.Calls() {
		assert.NotEqual(t, "#after", c.Selector)
	}
}

func TestRun_NavigationFailure(t *testing.T) {
	d := browsertest.New()
	d.FailNavigation("https://down.example.com", errors.New("connection refused"))

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionNavigate, Value: "https://down.example.com"},
	}
	_, err := fastExec(d).Run(context.Background(), steps)

	var ne *NavigationError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "https://down.example.com", ne.URL)
}

func TestRun_WaitForSucceedsWhenTextAppearsLate(t *testing.T) {
	d := browsertest.New()
	start := time.Now()
	banner := d.Install(".flash")
	banner.TextFn = func() string {
		if time.Since(start) > 10*time.Millisecond {
			return "Saved successfully"
		}
		return "Saving..."
	}

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionWaitFor, Selector: ".flash", ExpectText: "Saved", TimeoutMs: 500},
	}
	_, err := fastExec(d).Run(context.Background(), steps)
	require.NoError(t, err)
}

func TestRun_WaitForTimesOutWithoutIndicator(t *testing.T) {
	d := browsertest.New()
	banner := d.Install(".flash")
	banner.TextValue = "Error: something went wrong"

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionWaitFor, Selector: ".flash", ExpectText: "Saved", TimeoutMs: 20},
	}
	_, err := fastExec(d).Run(context.Background(), steps)

	var sne *SuccessNotObservedError
	require.True(t, errors.As(err, &sne))
	assert.Contains(t, err.Error(), "success indicator not observed")
}

func TestRun_RejectsUnresolvedPlaceholders(t *testing.T) {
	d := browsertest.New()
	d.Install("#title")

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionType, Selector: "#title", Value: "{{TITLE}}"},
	}
	outcomes, err := fastExec(d).Run(context.Background(), steps)
	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StateFailed, outcomes[0].State)
	assert.Empty(t, d.Calls())
}

func TestRun_UploadInjectsFilePath(t *testing.T) {
	d := browsertest.New()
	input := d.Install("input[type=file]")

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionUpload, Selector: "input[type=file]", Value: "/tmp/staged/house.jpg"},
	}
	_, err := fastExec(d).Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/staged/house.jpg"}, input.Uploaded)
}

func TestRun_ContextCancellationStopsReplay(t *testing.T) {
	d := browsertest.New()
	d.Install("#a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionClick, Selector: "#a"},
	}
	outcomes, err := fastExec(d).Run(ctx, steps)
	require.Error(t, err)
	assert.Empty(t, outcomes)
}

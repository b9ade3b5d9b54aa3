package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/provision"
	"github.com/vk/matrixci/internal/result"
	"github.com/vk/matrixci/internal/runner"
	"github.com/vk/matrixci/internal/scheduler"
	"github.com/vk/matrixci/internal/testutil"
)

func template(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "template %q: %s", src, diags.Error())
	return expr
}

func singleStepWorkflow(t *testing.T) *config.Workflow {
	return &config.Workflow{
		Name:  "ci",
		Steps: []*config.Step{{Name: "test", Run: template(t, "run tests")}},
	}
}

func expand(t *testing.T, spec *config.MatrixSpec) []*job.Variant {
	t.Helper()
	variants, err := matrix.Expand(spec)
	require.NoError(t, err)
	return variants
}

func osAxis(values ...string) *config.MatrixSpec {
	return &config.MatrixSpec{Axes: []*config.Axis{{Name: "os", Values: values}}}
}

func statusByLabel(res *result.WorkflowResult) map[string]job.Status {
	out := make(map[string]job.Status, len(res.Jobs))
	for _, rec := range res.Jobs {
		out[rec.Label] = rec.Status
	}
	return out
}

func TestRunAllJobsSucceed(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 4)

	res, err := sched.Run(context.Background(), singleStepWorkflow(t), expand(t, osAxis("A", "B", "C")))
	require.NoError(t, err)

	assert.True(t, res.Overall)
	require.Len(t, res.Jobs, 3)
	for _, rec := range res.Jobs {
		assert.Equal(t, job.Succeeded, rec.Status)
		assert.Equal(t, -1, rec.FailedStep)
	}
	assert.NotEmpty(t, res.RunID)

	// Every environment handed out was given back, none shared.
	assert.Len(t, provisioner.Acquired(), 3)
	assert.ElementsMatch(t, provisioner.Acquired(), provisioner.Released())
}

func TestRunResolvesProvisioningTarget(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 1)

	workflow := singleStepWorkflow(t)
	workflow.RunsOn = template(t, "${matrix.os}-latest")
	workflow.Interpreter = template(t, "${matrix.python}")

	spec := &config.MatrixSpec{Axes: []*config.Axis{
		{Name: "os", Values: []string{"ubuntu"}},
		{Name: "python", Values: []string{"3.9", "3.10"}},
	}}
	res, err := sched.Run(context.Background(), workflow, expand(t, spec))
	require.NoError(t, err)
	require.True(t, res.Overall)

	assert.Equal(t, []string{"ubuntu-latest/3.9", "ubuntu-latest/3.10"}, provisioner.AcquiredSpecs())
}

func TestRunNeverExceedsConcurrencyLimit(t *testing.T) {
	const workers = 2
	const jobs = 5

	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	commands.Gate = make(chan struct{})
	commands.Started = make(chan string, jobs)
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), workers)

	resChan := make(chan *result.WorkflowResult, 1)
	go func() {
		res, err := sched.Run(context.Background(), singleStepWorkflow(t), expand(t, osAxis("a", "b", "c", "d", "e")))
		require.NoError(t, err)
		resChan <- res
	}()

	// Both workers are now held inside a running step.
	<-commands.Started
	<-commands.Started
	select {
	case cmd := <-commands.Started:
		t.Fatalf("a third job started (%q) with only %d workers", cmd, workers)
	case <-time.After(100 * time.Millisecond):
	}

	close(commands.Gate)
	res := <-resChan

	assert.True(t, res.Overall)
	assert.LessOrEqual(t, commands.MaxActive(), workers)
	assert.Len(t, commands.Calls(), jobs)
}

func TestRunDispatchesFIFO(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 1)

	workflow := &config.Workflow{
		Name:  "ci",
		Steps: []*config.Step{{Name: "test", Run: template(t, "test on ${matrix.os}")}},
	}
	_, err := sched.Run(context.Background(), workflow, expand(t, osAxis("first", "second", "third")))
	require.NoError(t, err)

	calls := commands.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "test on first", calls[0].Command)
	assert.Equal(t, "test on second", calls[1].Command)
	assert.Equal(t, "test on third", calls[2].Command)
}

func TestRunProvisioningFailureIsContained(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	provisioner.FailImages["broken"] = true
	commands := testutil.NewFakeCommandRunner()
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 2)

	res, err := sched.Run(context.Background(), singleStepWorkflow(t), expand(t, osAxis("good", "broken", "also-good")))
	require.NoError(t, err)

	statuses := statusByLabel(res)
	assert.Equal(t, job.Succeeded, statuses["os=good"])
	assert.Equal(t, job.Failed, statuses["os=broken"])
	assert.Equal(t, job.Succeeded, statuses["os=also-good"])
	assert.False(t, res.Overall)

	for _, rec := range res.Jobs {
		if rec.Label != "os=broken" {
			continue
		}
		var provErr *provision.Error
		require.ErrorAs(t, rec.Err, &provErr)
		assert.Equal(t, "broken", provErr.OSImage)
	}

	// The failed job never reached a subprocess.
	assert.Len(t, commands.Calls(), 2)
}

func TestRunStepFailureRecordsIndexAndOutput(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	commands.Results["run tests"] = runner.CommandResult{ExitCode: 1, Output: []byte("tests failed")}
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 1)

	res, err := sched.Run(context.Background(), singleStepWorkflow(t), expand(t, osAxis("A")))
	require.NoError(t, err)

	assert.False(t, res.Overall)
	require.Len(t, res.Jobs, 1)
	rec := res.Jobs[0]
	assert.Equal(t, job.Failed, rec.Status)
	assert.Equal(t, 0, rec.FailedStep)
	require.Len(t, rec.Steps, 1)
	assert.Equal(t, []byte("tests failed"), rec.Steps[0].Output)
}

func TestRunNonRequiredJobFailureKeepsOverallSuccess(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	commands.Results["test on experimental"] = runner.CommandResult{ExitCode: 1}
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 2)

	workflow := &config.Workflow{
		Name:  "ci",
		Steps: []*config.Step{{Name: "test", Run: template(t, "test on ${matrix.os}")}},
	}
	spec := &config.MatrixSpec{
		Axes: []*config.Axis{{Name: "os", Values: []string{"stable"}}},
		Includes: []*config.Include{
			{Values: map[string]string{"os": "experimental"}, ContinueOnError: true},
		},
	}
	res, err := sched.Run(context.Background(), workflow, expand(t, spec))
	require.NoError(t, err)

	statuses := statusByLabel(res)
	assert.Equal(t, job.Succeeded, statuses["os=stable"])
	assert.Equal(t, job.Failed, statuses["os=experimental"])
	assert.True(t, res.Overall, "a continue-on-error job must not fail the workflow")
}

func TestRunCancellationStopsRunningAndPendingJobs(t *testing.T) {
	provisioner := testutil.NewFakeProvisioner()
	commands := testutil.NewFakeCommandRunner()
	commands.Gate = make(chan struct{})
	commands.Started = make(chan string, 3)
	sched := scheduler.New(provisioner, runner.NewExecutor(commands), 2)

	ctx, cancel := context.WithCancel(context.Background())
	resChan := make(chan *result.WorkflowResult, 1)
	go func() {
		res, err := sched.Run(ctx, singleStepWorkflow(t), expand(t, osAxis("a", "b", "c")))
		require.NoError(t, err)
		resChan <- res
	}()

	// Two jobs are mid-step, the third is still pending.
	<-commands.Started
	<-commands.Started
	cancel()
	res := <-resChan

	assert.False(t, res.Overall)
	for _, rec := range res.Jobs {
		assert.Equal(t, job.Cancelled, rec.Status, "job %s", rec.Label)
	}
	// The pending job never started a subprocess.
	assert.Len(t, commands.Calls(), 2)
	// Environments of the running jobs were still released.
	assert.ElementsMatch(t, provisioner.Acquired(), provisioner.Released())
}

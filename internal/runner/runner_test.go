package runner_test

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
	"github.com/vk/matrixci/internal/provision"
	"github.com/vk/matrixci/internal/runner"
	"github.com/vk/matrixci/internal/testutil"
)

func template(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "template %q: %s", src, diags.Error())
	return expr
}

func step(t *testing.T, name, run string, continueOnError bool) *config.Step {
	return &config.Step{Name: name, Run: template(t, run), ContinueOnError: continueOnError}
}

func testVariant() *job.Variant {
	return job.NewVariant([]string{"os", "version"}, map[string]string{"os": "linux", "version": "3.9"}, false)
}

func testEnv() *provision.Environment {
	return &provision.Environment{ID: "env-1", OSImage: "linux", Interpreter: "3.9"}
}

func TestExecutorRunsStepsInOrder(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	exec := runner.NewExecutor(commands)

	steps := []*config.Step{
		step(t, "install", "install deps", false),
		step(t, "test", "run tests", false),
	}
	results, err := exec.Run(context.Background(), testVariant(), testEnv(), steps)
	require.NoError(t, err)
	require.Len(t, results, 2)

	calls := commands.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "install deps", calls[0].Command)
	assert.Equal(t, "run tests", calls[1].Command)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestExecutorHaltsOnFailingStep(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	commands.Results["run tests"] = runner.CommandResult{ExitCode: 1, Output: []byte("assertion failed")}
	exec := runner.NewExecutor(commands)

	steps := []*config.Step{
		step(t, "test", "run tests", false),
		step(t, "report", "upload report", false),
	}
	results, err := exec.Run(context.Background(), testVariant(), testEnv(), steps)

	var stepErr *runner.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 0, stepErr.Index)
	assert.Equal(t, 1, stepErr.ExitCode)

	require.Len(t, results, 1, "subsequent steps must not run")
	assert.True(t, results[0].Failed)
	assert.Equal(t, []byte("assertion failed"), results[0].Output)
	require.Len(t, commands.Calls(), 1)
}

func TestExecutorContinuesPastFlaggedFailure(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	commands.Results["flaky check"] = runner.CommandResult{ExitCode: 2}
	exec := runner.NewExecutor(commands)

	steps := []*config.Step{
		step(t, "flaky", "flaky check", true),
		step(t, "test", "run tests", false),
	}
	results, err := exec.Run(context.Background(), testVariant(), testEnv(), steps)
	require.NoError(t, err, "continue_on_error failures must not fail the job")
	require.Len(t, results, 2)
	assert.True(t, results[0].Failed)
	assert.False(t, results[1].Failed)
}

func TestExecutorInterpolatesMatrixValues(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	exec := runner.NewExecutor(commands)

	steps := []*config.Step{step(t, "test", "tox -e py${matrix.version}", false)}
	_, err := exec.Run(context.Background(), testVariant(), testEnv(), steps)
	require.NoError(t, err)

	calls := commands.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tox -e py3.9", calls[0].Command)
	assert.Contains(t, calls[0].ExtraEnv, "MATRIX_OS=linux")
	assert.Contains(t, calls[0].ExtraEnv, "MATRIX_VERSION=3.9")
}

func TestExecutorRendersStepEnv(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	exec := runner.NewExecutor(commands)

	s := step(t, "test", "run tests", false)
	s.Env = map[string]hcl.Expression{"TARGET": template(t, "py${matrix.version}")}
	_, err := exec.Run(context.Background(), testVariant(), testEnv(), []*config.Step{s})
	require.NoError(t, err)

	calls := commands.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].ExtraEnv, "TARGET=py3.9")
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	commands.Gate = make(chan struct{})
	exec := runner.NewExecutor(commands)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	steps := []*config.Step{
		step(t, "hang", "hang forever", false),
		step(t, "after", "never runs", false),
	}
	results, err := exec.Run(ctx, testVariant(), testEnv(), steps)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, commands.Calls(), 1, "no further steps after cancellation")
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed)
}

func TestExecutorReportsTemplateErrorsAsStepErrors(t *testing.T) {
	commands := testutil.NewFakeCommandRunner()
	exec := runner.NewExecutor(commands)

	steps := []*config.Step{step(t, "broken", "echo ${matrix.missing}", false)}
	_, err := exec.Run(context.Background(), testVariant(), testEnv(), steps)

	var stepErr *runner.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, -1, stepErr.ExitCode)
	require.NotNil(t, stepErr.Cause)
	assert.Empty(t, commands.Calls(), "a step that fails to render must not spawn a subprocess")
}

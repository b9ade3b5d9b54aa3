// Package runner executes one job's ordered step sequence inside a
// provisioned environment. Steps run strictly in order; a failing step
// halts the rest unless it is flagged continue_on_error, and every step's
// output is captured and attributed to its (job, step index).
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/provision"
)

// StepResult is the captured outcome of one executed step.
type StepResult struct {
	Index           int
	Name            string
	Command         string
	ExitCode        int
	Output          []byte
	Failed          bool
	ContinueOnError bool
}

// Executor runs step sequences through a CommandRunner.
type Executor struct {
	commands CommandRunner
}

// NewExecutor creates a step executor over the given subprocess capability.
func NewExecutor(commands CommandRunner) *Executor {
	return &Executor{commands: commands}
}

// Run executes the steps for one variant inside env. It returns the
// results of every step that started. The error is a *StepError when a
// non-continue_on_error step failed, or the context error when
// cancellation interrupted execution; in both cases no further steps run.
func (e *Executor) Run(ctx context.Context, variant *job.Variant, env *provision.Environment, steps []*config.Step) ([]StepResult, error) {
	logger := ctxlog.FromContext(ctx).With("job", variant.Label())
	values := variant.Values()
	variantEnv := matrixEnv(variant)

	results := make([]StepResult, 0, len(steps))
	for index, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		command, err := matrix.EvalString(step.Run, values)
		if err != nil {
			return results, &StepError{Index: index, Name: step.Name, ExitCode: -1, Cause: err}
		}

		extraEnv, err := stepEnv(step, values, variantEnv)
		if err != nil {
			return results, &StepError{Index: index, Name: step.Name, ExitCode: -1, Cause: err}
		}

		stepLogger := logger.With("step", step.Name, "index", index)
		stepLogger.Info("▶️ Starting step")

		cmdResult, err := e.commands.Run(ctx, command, env, extraEnv)
		if err != nil {
			if ctx.Err() != nil {
				// The subprocess was torn down by cancellation; record
				// what we captured and surface the cancellation itself.
				if cmdResult != nil {
					results = append(results, StepResult{
						Index:           index,
						Name:            step.Name,
						Command:         command,
						ExitCode:        cmdResult.ExitCode,
						Output:          cmdResult.Output,
						Failed:          true,
						ContinueOnError: step.ContinueOnError,
					})
				}
				return results, ctx.Err()
			}
			return results, &StepError{Index: index, Name: step.Name, ExitCode: -1, Cause: err}
		}

		result := StepResult{
			Index:           index,
			Name:            step.Name,
			Command:         command,
			ExitCode:        cmdResult.ExitCode,
			Output:          cmdResult.Output,
			Failed:          cmdResult.ExitCode != 0,
			ContinueOnError: step.ContinueOnError,
		}
		results = append(results, result)

		if result.Failed {
			if !step.ContinueOnError {
				stepLogger.Error("Step failed.", "exitCode", result.ExitCode)
				return results, &StepError{Index: index, Name: step.Name, ExitCode: result.ExitCode}
			}
			stepLogger.Warn("Step failed but is flagged continue_on_error, proceeding.", "exitCode", result.ExitCode)
			continue
		}
		stepLogger.Info("✅ Finished step")
	}
	return results, nil
}

// matrixEnv exposes every axis value to subprocesses as MATRIX_<AXIS>.
func matrixEnv(variant *job.Variant) []string {
	keys := variant.Keys()
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		value, _ := variant.Value(key)
		env = append(env, fmt.Sprintf("MATRIX_%s=%s", envName(key), value))
	}
	return env
}

// stepEnv evaluates the step's env templates against the variant scope.
func stepEnv(step *config.Step, values map[string]string, variantEnv []string) ([]string, error) {
	env := append([]string(nil), variantEnv...)
	for key, expr := range step.Env {
		value, err := matrix.EvalString(expr, values)
		if err != nil {
			return nil, fmt.Errorf("env %q: %w", key, err)
		}
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	return env, nil
}

// envName maps an axis name to an environment-variable-safe suffix.
func envName(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return mapped
}

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/runner"
	"github.com/vk/matrixci/internal/scheduler"
)

// Run executes every loaded workflow in sequence and writes a report for
// each. It returns an error when the matrix specification is invalid,
// when the engine itself faults, or when any required job failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		go a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	sched := scheduler.New(a.Provisioner, runner.NewExecutor(a.Commands), a.config.Workers)

	var failed []string
	for _, workflow := range a.workflows {
		workflowLogger := a.logger.With("workflow", workflow.Name)
		workflowCtx := ctxlog.WithLogger(ctx, workflowLogger)

		variants, err := matrix.Expand(workflow.Matrix)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", workflow.Name, err)
		}
		workflowLogger.Debug("Matrix expanded.", "variants", len(variants))

		if len(workflow.Steps) == 0 {
			workflowLogger.Warn("Workflow has no steps, execution not required.")
			continue
		}

		res, err := sched.Run(workflowCtx, workflow, variants)
		if err != nil {
			return fmt.Errorf("workflow %q: execution failed: %w", workflow.Name, err)
		}
		res.Report(a.outW)

		if !res.Overall {
			failed = append(failed, workflow.Name)
		}
	}

	a.logger.Debug("App.Run method finished.")
	if len(failed) > 0 {
		return fmt.Errorf("workflow failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

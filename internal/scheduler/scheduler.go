package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/provision"
	"github.com/vk/matrixci/internal/result"
	"github.com/vk/matrixci/internal/runner"
)

// Scheduler owns the job table for one workflow run: it creates the Job
// records, drives every status transition, and hands terminal outcomes to
// the aggregator.
type Scheduler struct {
	provisioner provision.Provisioner
	executor    *runner.Executor
	workers     int
}

// New creates a scheduler with the given concurrency limit. Limits below
// one are clamped to one.
func New(provisioner provision.Provisioner, executor *runner.Executor, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		provisioner: provisioner,
		executor:    executor,
		workers:     workers,
	}
}

// Run executes every variant of the workflow and blocks until all jobs
// reach a terminal state, then returns the aggregated result. Cancelling
// ctx stops new dispatch and propagates to running jobs; Run still
// returns the (failed) result in that case. The returned error is
// reserved for engine faults, not job failures.
func (s *Scheduler) Run(ctx context.Context, workflow *config.Workflow, variants []*job.Variant) (*result.WorkflowResult, error) {
	logger := ctxlog.FromContext(ctx)
	runID := uuid.NewString()
	logger = logger.With("runID", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	jobs := make([]*job.Job, 0, len(variants))
	labels := make([]string, 0, len(variants))
	for _, v := range variants {
		jobs = append(jobs, job.New(v))
		labels = append(labels, v.Label())
	}
	agg := result.NewAggregator(runID, labels)

	// Every job is ready at start; the buffered channel is the FIFO
	// ready queue and its fill order is the dispatch order.
	ready := make(chan *job.Job, len(jobs))
	for _, j := range jobs {
		ready <- j
	}
	close(ready)

	logger.Info("🚀 Starting matrix execution...", "jobs", len(jobs), "workers", s.workers)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workflow, ready, agg, workerID)
		}(i)
	}
	wg.Wait()
	logger.Info("🏁 Execution finished.")

	if !agg.Complete() {
		return agg.Result(), errors.New("scheduler finished with unreported jobs")
	}
	return agg.Result(), nil
}

// worker drains the ready queue, running one job at a time to completion.
func (s *Scheduler) worker(ctx context.Context, workflow *config.Workflow, ready <-chan *job.Job, agg *result.Aggregator, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for j := range ready {
		workerLogger := logger.With("workerID", workerID, "job", j.Label())

		if ctx.Err() != nil {
			if j.Cancel(ctx.Err()) {
				workerLogger.Warn("Run cancelled, job will not start.")
				agg.Record(terminalRecord(j, nil, -1))
			}
			continue
		}

		workerLogger.Debug("Worker picked up job.")
		agg.Record(s.runJob(ctx, workflow, j))
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// runJob drives a single job Pending→Provisioning→Running→terminal and
// returns its terminal record.
func (s *Scheduler) runJob(ctx context.Context, workflow *config.Workflow, j *job.Job) *result.JobRecord {
	logger := ctxlog.FromContext(ctx).With("job", j.Label())
	logger.Info("▶️ Starting job")

	j.Advance(job.Provisioning)
	osImage, interpreter, err := resolveTarget(workflow, j.Variant())
	if err != nil {
		j.Err = err
		j.Advance(job.Failed)
		logger.Error("Job target resolution failed.", "error", err)
		return terminalRecord(j, nil, -1)
	}

	env, err := s.provisioner.Acquire(ctx, osImage, interpreter)
	if err != nil {
		if ctx.Err() != nil {
			j.Cancel(ctx.Err())
			logger.Warn("Run cancelled while provisioning.")
			return terminalRecord(j, nil, -1)
		}
		j.Err = fmt.Errorf("environment acquisition: %w", err)
		j.Advance(job.Failed)
		logger.Error("Provisioning failed.", "error", err)
		return terminalRecord(j, nil, -1)
	}

	j.Advance(job.Running)
	steps, runErr := s.executor.Run(ctx, j.Variant(), env, workflow.Steps)

	if releaseErr := s.provisioner.Release(ctx, env); releaseErr != nil {
		logger.Warn("Environment release failed.", "envID", env.ID, "error", releaseErr)
	}

	switch {
	case runErr == nil:
		j.Advance(job.Succeeded)
		logger.Info("✅ Job finished")
		return terminalRecord(j, steps, -1)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		j.Cancel(runErr)
		logger.Warn("Job cancelled mid-run.")
		return terminalRecord(j, steps, -1)
	default:
		j.Err = runErr
		j.Advance(job.Failed)
		failedStep := -1
		var stepErr *runner.StepError
		if errors.As(runErr, &stepErr) {
			failedStep = stepErr.Index
		}
		logger.Error("Job failed.", "error", runErr)
		return terminalRecord(j, steps, failedStep)
	}
}

func terminalRecord(j *job.Job, steps []runner.StepResult, failedStep int) *result.JobRecord {
	return &result.JobRecord{
		Label:      j.Label(),
		Status:     j.Status(),
		Required:   !j.Variant().ContinueOnError(),
		Steps:      steps,
		FailedStep: failedStep,
		Err:        j.Err,
	}
}

// resolveTarget evaluates the workflow's runs_on and interpreter
// expressions for one variant. Absent expressions fall back to the "os"
// and "interpreter" axis values.
func resolveTarget(workflow *config.Workflow, variant *job.Variant) (osImage, interpreter string, err error) {
	values := variant.Values()

	if workflow.RunsOn != nil {
		osImage, err = matrix.EvalString(workflow.RunsOn, values)
		if err != nil {
			return "", "", fmt.Errorf("runs_on: %w", err)
		}
	} else {
		osImage, _ = variant.Value("os")
	}

	if workflow.Interpreter != nil {
		interpreter, err = matrix.EvalString(workflow.Interpreter, values)
		if err != nil {
			return "", "", fmt.Errorf("interpreter: %w", err)
		}
	} else {
		interpreter, _ = variant.Value("interpreter")
	}
	return osImage, interpreter, nil
}

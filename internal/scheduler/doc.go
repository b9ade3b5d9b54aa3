// Package scheduler dispatches expanded job variants onto a bounded pool
// of workers and drives each job through its lifecycle.
//
// # Scheduling Model
//
// The ready queue is a FIFO buffered channel holding every job up front;
// a matrix has no inter-job dependencies, so all jobs are ready at start.
// N workers drain the queue, each running one job to completion before
// taking the next, which bounds the number of jobs in Provisioning or
// Running at N. There is no priority and no automatic retry.
//
// # Failure and Cancellation Semantics
//
//   - A provisioning failure is terminal for that job only; other jobs
//     keep running.
//   - A step failure marks the job Failed and never stops other jobs.
//   - Context cancellation stops new dispatch (queued jobs move straight
//     to Cancelled) and propagates into running steps, whose subprocesses
//     are reclaimed after the command runner's grace period.
//
// Job status is the only shared mutable state besides the aggregator's
// table; each job record is mutated by exactly one worker.
package scheduler

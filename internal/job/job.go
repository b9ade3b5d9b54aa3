// Package job defines the unit of scheduled work: the immutable Variant
// produced by matrix expansion and the mutable Job that tracks one
// variant's runtime lifecycle. Status transitions are the only mutation a
// Job allows, and the scheduler is their sole driver.
package job

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Variant is one concrete assignment of a value to every matrix axis.
// It is created once at expansion time and immutable thereafter.
type Variant struct {
	keys            []string
	values          map[string]string
	continueOnError bool
	label           string
}

// NewVariant builds a variant from keys in label order and their values.
// The keys slice and values map are copied; callers may reuse them.
func NewVariant(keys []string, values map[string]string, continueOnError bool) *Variant {
	v := &Variant{
		keys:            append([]string(nil), keys...),
		values:          make(map[string]string, len(values)),
		continueOnError: continueOnError,
	}
	for k, val := range values {
		v.values[k] = val
	}

	parts := make([]string, 0, len(v.keys))
	for _, k := range v.keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v.values[k]))
	}
	v.label = strings.Join(parts, ", ")
	return v
}

// Label returns the stable, human-readable identity of the variant:
// key=value pairs joined in axis declaration order.
func (v *Variant) Label() string {
	return v.label
}

// Keys returns the variant's keys in label order.
func (v *Variant) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Value returns the variant's value for one key and whether it exists.
func (v *Variant) Value(key string) (string, bool) {
	val, ok := v.values[key]
	return val, ok
}

// Values returns a copy of the variant's key-value assignments.
func (v *Variant) Values() map[string]string {
	out := make(map[string]string, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// ContinueOnError reports whether the variant's job is designated
// non-required: its failure does not fail the workflow.
func (v *Variant) ContinueOnError() bool {
	return v.continueOnError
}

// Status is the runtime lifecycle state of a Job.
type Status int32

const (
	// Pending indicates the job is waiting in the ready queue.
	Pending Status = iota
	// Provisioning indicates a worker is acquiring the job's environment.
	Provisioning
	// Running indicates the job's steps are executing.
	Running
	// Succeeded is terminal: every required step completed successfully.
	Succeeded
	// Failed is terminal: provisioning or a required step failed.
	Failed
	// Cancelled is terminal: workflow-level cancellation reached the job.
	Cancelled
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Provisioning:
		return "provisioning"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Terminal reports whether the status is one of the three end states.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Job binds a Variant to its mutable runtime status.
type Job struct {
	variant *Variant

	// status is managed atomically; Advance is the only legal mutator.
	status atomic.Int32
	// Err records the failure or cancellation cause, set by the worker
	// that drove the job to its terminal state.
	Err error

	// cancelOnce guarantees cancellation is applied to a job exactly once
	// even when the dispatch loop and a worker race on it.
	cancelOnce sync.Once
}

// New creates a Job in the Pending state for the given variant.
func New(variant *Variant) *Job {
	return &Job{variant: variant}
}

// Variant returns the job's immutable variant.
func (j *Job) Variant() *Variant {
	return j.variant
}

// Label returns the job's identity, which is its variant's label.
func (j *Job) Label() string {
	return j.variant.Label()
}

// Status atomically retrieves the job's current status.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Advance moves the job to the given status, enforcing the lifecycle
// Pending→Provisioning→Running→{Succeeded|Failed}, with Failed also
// reachable from Provisioning. It returns false if the transition is not
// legal from the current status. Cancellation goes through Cancel.
func (j *Job) Advance(to Status) bool {
	for {
		from := Status(j.status.Load())
		if !legalTransition(from, to) {
			return false
		}
		if j.status.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

// Cancel marks the job Cancelled exactly once, recording the cause. Jobs
// already in a terminal state are left untouched and Cancel reports false.
func (j *Job) Cancel(cause error) bool {
	var cancelled bool
	j.cancelOnce.Do(func() {
		for {
			from := Status(j.status.Load())
			if from.Terminal() {
				return
			}
			if j.status.CompareAndSwap(int32(from), int32(Cancelled)) {
				j.Err = cause
				cancelled = true
				return
			}
		}
	})
	return cancelled
}

func legalTransition(from, to Status) bool {
	switch to {
	case Provisioning:
		return from == Pending
	case Running:
		return from == Provisioning
	case Succeeded:
		return from == Running
	case Failed:
		return from == Provisioning || from == Running
	default:
		return false
	}
}

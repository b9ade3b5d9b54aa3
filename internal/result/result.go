// Package result collects terminal job statuses as they stream in and
// computes the overall workflow outcome once every job has finished.
package result

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/runner"
)

// JobRecord is the terminal outcome of one job variant.
type JobRecord struct {
	// Label is the variant's stable identity.
	Label string
	// Status is the job's terminal status.
	Status job.Status
	// Required is false for continue-on-error-designated jobs, whose
	// failure does not fail the workflow.
	Required bool
	// Steps holds the captured result of every step that started.
	Steps []runner.StepResult
	// FailedStep is the index of the step that failed the job, or -1.
	FailedStep int
	// Err is the failure or cancellation cause, if any.
	Err error
}

// WorkflowResult maps every job variant to its terminal status plus the
// overall outcome. It is an immutable snapshot; computing it twice from
// the same terminal set yields the same result.
type WorkflowResult struct {
	// RunID identifies the workflow run the result belongs to.
	RunID string
	// Jobs holds one record per variant, in dispatch order.
	Jobs []*JobRecord
	// Overall is true iff every required job succeeded.
	Overall bool
}

// Aggregator consumes terminal job records as jobs complete. It is safe
// for concurrent use by all workers.
type Aggregator struct {
	mu      sync.Mutex
	runID   string
	order   []string
	records map[string]*JobRecord
}

// NewAggregator creates an aggregator expecting exactly the given variant
// labels, which also fix the record order of the final result.
func NewAggregator(runID string, labels []string) *Aggregator {
	return &Aggregator{
		runID:   runID,
		order:   append([]string(nil), labels...),
		records: make(map[string]*JobRecord, len(labels)),
	}
}

// Record stores one job's terminal outcome. Recording a non-terminal
// status or an unknown label is a programming error and panics; recording
// the same label twice keeps the first record, preserving idempotency.
func (a *Aggregator) Record(rec *JobRecord) {
	if !rec.Status.Terminal() {
		panic(fmt.Sprintf("result: job %q recorded with non-terminal status %s", rec.Label, rec.Status))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, known := a.indexOf(rec.Label); !known {
		panic(fmt.Sprintf("result: job %q was never expected", rec.Label))
	}
	if _, exists := a.records[rec.Label]; exists {
		return
	}
	a.records[rec.Label] = rec
}

// Complete reports whether every expected job has reached a terminal state.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records) == len(a.order)
}

// Result computes the WorkflowResult snapshot. The computation depends
// only on the recorded terminal set, never on completion order, so it is
// idempotent. Jobs that never reported (which the scheduler does not
// allow) count as failed.
func (a *Aggregator) Result() *WorkflowResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := &WorkflowResult{RunID: a.runID, Overall: true}
	for _, label := range a.order {
		rec, ok := a.records[label]
		if !ok {
			rec = &JobRecord{Label: label, Status: job.Failed, Required: true, FailedStep: -1}
		}
		out.Jobs = append(out.Jobs, rec)
		if rec.Required && rec.Status != job.Succeeded {
			out.Overall = false
		}
	}
	return out
}

func (a *Aggregator) indexOf(label string) (int, bool) {
	for i, l := range a.order {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

// Report writes a human-readable summary of the result: one status line
// per job and, for failed jobs, the failing step with an output excerpt.
func (r *WorkflowResult) Report(w io.Writer) {
	fmt.Fprintf(w, "run %s\n", r.RunID)
	for _, rec := range r.Jobs {
		marker := "✅"
		switch rec.Status {
		case job.Failed:
			marker = "❌"
		case job.Cancelled:
			marker = "🚫"
		}
		required := ""
		if !rec.Required {
			required = " (not required)"
		}
		fmt.Fprintf(w, "%s %-10s %s%s\n", marker, rec.Status, rec.Label, required)

		if rec.Status == job.Failed && rec.FailedStep >= 0 && rec.FailedStep < len(rec.Steps) {
			failed := rec.Steps[rec.FailedStep]
			fmt.Fprintf(w, "   step %d (%s) exited with code %d\n", failed.Index, failed.Name, failed.ExitCode)
			if excerpt := tail(failed.Output, 20); excerpt != "" {
				fmt.Fprintf(w, "   output:\n%s", indent(excerpt, "   | "))
			}
		}
	}
	outcome := "success"
	if !r.Overall {
		outcome = "failure"
	}
	fmt.Fprintf(w, "overall: %s\n", outcome)
}

// tail returns the last n lines of captured output.
func tail(output []byte, n int) string {
	trimmed := strings.TrimRight(string(output), "\n")
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

func indent(s, prefix string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

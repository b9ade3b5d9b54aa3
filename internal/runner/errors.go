package runner

import "fmt"

// StepError reports the failure of one step. It carries the step index so
// the workflow result can attribute the failure, and it is fatal to the
// job unless the step is flagged continue_on_error.
type StepError struct {
	// Index is the zero-based position of the step in the job's sequence.
	Index int
	// Name is the step's declared name.
	Name string
	// ExitCode is the subprocess exit code, or -1 when the step failed
	// before or without producing one.
	ExitCode int
	// Cause is set when the failure was not a plain non-zero exit
	// (template evaluation, subprocess spawn).
	Cause error
}

func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("step %d (%q): %v", e.Index, e.Name, e.Cause)
	}
	return fmt.Sprintf("step %d (%q) exited with code %d", e.Index, e.Name, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

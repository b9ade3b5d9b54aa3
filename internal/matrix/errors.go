package matrix

import "fmt"

// InvalidSpecError reports a malformed matrix specification. It is fatal:
// the workflow aborts before any job is scheduled.
type InvalidSpecError struct {
	Reason string
	cause  error
}

func (e *InvalidSpecError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid matrix spec: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("invalid matrix spec: %s", e.Reason)
}

func (e *InvalidSpecError) Unwrap() error {
	return e.cause
}

func invalidSpec(format string, args ...any) *InvalidSpecError {
	return &InvalidSpecError{Reason: fmt.Sprintf(format, args...)}
}

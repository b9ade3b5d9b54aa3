package config

import "context"

// Loader translates one concrete workflow description format into the
// agnostic model. Implementations exist for HCL and YAML; the caller
// selects one based on the file's extension.
type Loader interface {
	// Load parses the workflow description at path and returns the
	// translated model. Parse and translation failures are returned as a
	// single wrapped error; a loader never returns a partial Workflow.
	Load(ctx context.Context, path string) (*Workflow, error)
}

package config

import (
	"github.com/hashicorp/hcl/v2"
)

// Workflow is the fully loaded, format-agnostic description of one CI
// workflow: its trigger metadata, the matrix of job variants to run, and
// the ordered steps every variant executes.
type Workflow struct {
	// Name is the workflow's human-readable identifier.
	Name string
	// On lists the trigger events the workflow declares (e.g. "push").
	// The engine records them; actual event delivery is an outer-platform
	// concern, and a manual run ignores them.
	On []string
	// RunsOn evaluates to the OS image requested from the provisioner,
	// per variant. When nil, the value of the "os" axis is used.
	RunsOn hcl.Expression
	// Interpreter evaluates to the interpreter version requested from the
	// provisioner, per variant. When nil, the value of the "interpreter"
	// axis is used, or empty if no such axis exists.
	Interpreter hcl.Expression
	// Matrix is the variant cross-product specification. A nil matrix
	// yields a single variant with no axis values.
	Matrix *MatrixSpec
	// Steps is the ordered step list applied to every variant.
	Steps []*Step
}

// MatrixSpec declares the named axes whose cross product defines the job
// variants, plus include and exclude override rules.
type MatrixSpec struct {
	// Axes in declaration order. Order is significant: it fixes both the
	// expansion order and variant labels.
	Axes []*Axis
	// Includes are explicit extra entries, appended as new variants or
	// merged into matching cross-product variants.
	Includes []*Include
	// Excludes remove matching combinations from the cross product.
	Excludes []*Exclude
}

// Axis is one named dimension of the matrix with its ordered values.
type Axis struct {
	Name   string
	Values []string
}

// Include is one entry of the matrix include list. Keys that name declared
// axes select which variants the entry applies to; remaining keys are
// extra values merged into (or carried by) the variant.
type Include struct {
	Values map[string]string
	// ContinueOnError designates the resulting job as non-required: its
	// failure is recorded but does not fail the workflow.
	ContinueOnError bool
}

// Exclude is one entry of the matrix exclude list. A variant is dropped
// when every key in Match equals the variant's value for that axis and,
// if present, When evaluates to true against the variant's values.
type Exclude struct {
	Match map[string]string
	// When is an optional predicate expression evaluated with the
	// variant's axis values bound under the "matrix" object.
	When hcl.Expression
}

// Step is one ordered unit of work within a job. Immutable once loaded.
type Step struct {
	Name string
	// Run is the command template, evaluated per variant with the
	// "matrix" object in scope.
	Run hcl.Expression
	// ContinueOnError lets the job proceed past this step's failure; the
	// failure is recorded but does not by itself fail the job.
	ContinueOnError bool
	// Env holds additional environment values for the step's subprocess,
	// each evaluated per variant like Run.
	Env map[string]hcl.Expression
}

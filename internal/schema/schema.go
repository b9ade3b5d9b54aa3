package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Workflow File Structures ---

// File represents the top-level structure of a workflow description file.
type File struct {
	Workflows []*Workflow `hcl:"workflow,block"`
	Body      hcl.Body    `hcl:",remain"`
}

// Workflow represents a `workflow` block: trigger metadata, the matrix
// specification, and the ordered step list.
type Workflow struct {
	Name        string         `hcl:"name,label"`
	On          []string       `hcl:"on,optional"`
	RunsOn      hcl.Expression `hcl:"runs_on,optional"`
	Interpreter hcl.Expression `hcl:"interpreter,optional"`
	Matrix      *Matrix        `hcl:"matrix,block"`
	Steps       []*Step        `hcl:"step,block"`
}

// Matrix represents the `matrix` block. Axis blocks are kept as an ordered
// slice; declaration order drives expansion order and variant labels.
type Matrix struct {
	Axes     []*Axis    `hcl:"axis,block"`
	Includes []*Include `hcl:"include,block"`
	Excludes []*Exclude `hcl:"exclude,block"`
}

// Axis represents an `axis` block: one named dimension with ordered values.
type Axis struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// Include represents an `include` block. Its body carries axis-value
// assignments plus the reserved `continue_on_error` attribute, extracted
// during translation.
type Include struct {
	Body hcl.Body `hcl:",remain"`
}

// Exclude represents an `exclude` block. Its body carries axis-value
// matchers plus the reserved `when` predicate expression.
type Exclude struct {
	Body hcl.Body `hcl:",remain"`
}

// Step represents a `step` block: one command executed per job variant.
type Step struct {
	Name            string         `hcl:"name,label"`
	Run             hcl.Expression `hcl:"run"`
	ContinueOnError bool           `hcl:"continue_on_error,optional"`
	Env             hcl.Expression `hcl:"env,optional"`
}

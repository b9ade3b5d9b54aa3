// Package yamlconf provides the YAML implementation of the config.Loader
// interface, accepting workflow descriptions in the style of hosted CI
// platforms. Templated strings (step commands, env values) use the same
// "${matrix.<axis>}" interpolation as the HCL format: they are parsed as
// HCL string templates so both formats share one evaluation path.
package yamlconf

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new YAML workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// stringList accepts either a single scalar or a sequence, the way CI
// platforms allow `on: push` and `on: [push, pull_request]`.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected scalar", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected scalar or sequence", node.Line)
	}
}

type fileSchema struct {
	Name        string       `yaml:"name"`
	On          stringList   `yaml:"on"`
	RunsOn      string       `yaml:"runs_on"`
	Interpreter string       `yaml:"interpreter"`
	Matrix      yaml.Node    `yaml:"matrix"`
	Steps       []stepSchema `yaml:"steps"`
}

type stepSchema struct {
	Name            string            `yaml:"name"`
	Run             string            `yaml:"run"`
	ContinueOnError bool              `yaml:"continue_on_error"`
	Env             map[string]string `yaml:"env"`
}

// Load parses the workflow file at path and translates it into the
// agnostic model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var root fileSchema
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}

	workflow := &config.Workflow{Name: root.Name, On: root.On}
	if workflow.Name == "" {
		return nil, fmt.Errorf("workflow file %s: name is required", path)
	}

	spec, axisNames, err := translateMatrix(&root.Matrix)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow in %s: %w", path, err)
	}
	workflow.Matrix = spec

	if root.RunsOn != "" {
		workflow.RunsOn, err = targetExpression(root.RunsOn, axisNames, path)
		if err != nil {
			return nil, fmt.Errorf("invalid runs_on in %s: %w", path, err)
		}
	}
	if root.Interpreter != "" {
		workflow.Interpreter, err = targetExpression(root.Interpreter, axisNames, path)
		if err != nil {
			return nil, fmt.Errorf("invalid interpreter in %s: %w", path, err)
		}
	}

	for i, step := range root.Steps {
		translated, err := translateStep(&step, path)
		if err != nil {
			return nil, fmt.Errorf("invalid step %d in %s: %w", i, path, err)
		}
		workflow.Steps = append(workflow.Steps, translated)
	}

	logger.Debug("YAML loader finished.", "workflow", workflow.Name, "steps", len(workflow.Steps))
	return workflow, nil
}

// translateMatrix walks the matrix mapping node directly so that axis
// declaration order is preserved; decoding into a Go map would lose it.
// Scalar values are taken as their literal source text, so an unquoted
// version number like 3.10 is not mangled into a float.
func translateMatrix(node *yaml.Node) (*config.MatrixSpec, map[string]bool, error) {
	axisNames := make(map[string]bool)
	if node.Kind == 0 || node.IsZero() {
		return nil, axisNames, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("matrix must be a mapping")
	}

	spec := &config.MatrixSpec{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "include":
			includes, err := translateIncludes(value)
			if err != nil {
				return nil, nil, err
			}
			spec.Includes = includes
		case "exclude":
			excludes, err := translateExcludes(value)
			if err != nil {
				return nil, nil, err
			}
			spec.Excludes = excludes
		default:
			values, err := scalarSequence(value)
			if err != nil {
				return nil, nil, fmt.Errorf("axis %q: %w", key.Value, err)
			}
			spec.Axes = append(spec.Axes, &config.Axis{Name: key.Value, Values: values})
			axisNames[key.Value] = true
		}
	}
	return spec, axisNames, nil
}

func translateIncludes(node *yaml.Node) ([]*config.Include, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("include must be a sequence of mappings")
	}
	var includes []*config.Include
	for _, entry := range node.Content {
		if entry.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: include entry must be a mapping", entry.Line)
		}
		inc := &config.Include{Values: make(map[string]string)}
		for i := 0; i+1 < len(entry.Content); i += 2 {
			key, value := entry.Content[i], entry.Content[i+1]
			if key.Value == "continue_on_error" {
				flag, err := strconv.ParseBool(value.Value)
				if err != nil {
					return nil, fmt.Errorf("line %d: continue_on_error: %w", value.Line, err)
				}
				inc.ContinueOnError = flag
				continue
			}
			inc.Values[key.Value] = value.Value
		}
		includes = append(includes, inc)
	}
	return includes, nil
}

func translateExcludes(node *yaml.Node) ([]*config.Exclude, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("exclude must be a sequence of mappings")
	}
	var excludes []*config.Exclude
	for _, entry := range node.Content {
		if entry.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: exclude entry must be a mapping", entry.Line)
		}
		exc := &config.Exclude{Match: make(map[string]string)}
		for i := 0; i+1 < len(entry.Content); i += 2 {
			exc.Match[entry.Content[i].Value] = entry.Content[i+1].Value
		}
		excludes = append(excludes, exc)
	}
	return excludes, nil
}

func scalarSequence(node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence of scalars")
	}
	var out []string
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: expected scalar", item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

func translateStep(step *stepSchema, path string) (*config.Step, error) {
	if step.Run == "" {
		return nil, fmt.Errorf("run is required")
	}
	run, err := parseTemplate(step.Run, path)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	out := &config.Step{
		Name:            step.Name,
		Run:             run,
		ContinueOnError: step.ContinueOnError,
	}
	if len(step.Env) > 0 {
		out.Env = make(map[string]hcl.Expression, len(step.Env))
		for key, value := range step.Env {
			expr, err := parseTemplate(value, path)
			if err != nil {
				return nil, fmt.Errorf("env %q: %w", key, err)
			}
			out.Env[key] = expr
		}
	}
	return out, nil
}

// targetExpression builds the runs_on/interpreter expression: a bare axis
// name becomes a reference to that axis, anything else is a template.
func targetExpression(value string, axisNames map[string]bool, path string) (hcl.Expression, error) {
	if axisNames[value] {
		value = fmt.Sprintf("${matrix.%s}", value)
	}
	return parseTemplate(value, path)
}

// parseTemplate parses a YAML string as an HCL string template so both
// description formats share the "${matrix.<axis>}" interpolation syntax.
func parseTemplate(value, path string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(value), path, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("template %q: %w", value, diags)
	}
	return expr, nil
}

// This file contains the logic for translating HCL schema structs into the
// format-agnostic workflow model defined in the config package.

package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translateWorkflow converts the HCL workflow schema into the agnostic model.
func (l *Loader) translateWorkflow(s *schema.Workflow) (*config.Workflow, error) {
	w := &config.Workflow{
		Name:        s.Name,
		On:          s.On,
		RunsOn:      s.RunsOn,
		Interpreter: s.Interpreter,
	}

	if s.Matrix != nil {
		spec, err := l.translateMatrix(s.Matrix)
		if err != nil {
			return nil, err
		}
		w.Matrix = spec
	}

	for _, step := range s.Steps {
		translated, err := l.translateStep(step)
		if err != nil {
			return nil, err
		}
		w.Steps = append(w.Steps, translated)
	}

	return w, nil
}

// translateMatrix converts the matrix block, preserving axis declaration order.
func (l *Loader) translateMatrix(s *schema.Matrix) (*config.MatrixSpec, error) {
	spec := &config.MatrixSpec{}

	for _, axis := range s.Axes {
		spec.Axes = append(spec.Axes, &config.Axis{
			Name:   axis.Name,
			Values: axis.Values,
		})
	}

	for _, inc := range s.Includes {
		translated, err := l.translateInclude(inc)
		if err != nil {
			return nil, err
		}
		spec.Includes = append(spec.Includes, translated)
	}

	for _, exc := range s.Excludes {
		translated, err := l.translateExclude(exc)
		if err != nil {
			return nil, err
		}
		spec.Excludes = append(spec.Excludes, translated)
	}

	return spec, nil
}

// translateInclude extracts the reserved continue_on_error attribute and
// treats every remaining body attribute as an axis-value assignment.
func (l *Loader) translateInclude(s *schema.Include) (*config.Include, error) {
	attrs, diags := s.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid include block: %w", diags)
	}

	inc := &config.Include{Values: make(map[string]string)}
	for name, attr := range attrs {
		if name == "continue_on_error" {
			flag, err := staticBool(attr.Expr)
			if err != nil {
				return nil, fmt.Errorf("include continue_on_error: %w", err)
			}
			inc.ContinueOnError = flag
			continue
		}
		value, err := staticString(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("include value %q: %w", name, err)
		}
		inc.Values[name] = value
	}

	if len(inc.Values) == 0 {
		return nil, fmt.Errorf("include block must assign at least one axis value")
	}
	return inc, nil
}

// translateExclude extracts the reserved when predicate and treats every
// remaining body attribute as an axis-value matcher.
func (l *Loader) translateExclude(s *schema.Exclude) (*config.Exclude, error) {
	attrs, diags := s.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid exclude block: %w", diags)
	}

	exc := &config.Exclude{Match: make(map[string]string)}
	for name, attr := range attrs {
		if name == "when" {
			// Kept unevaluated: the predicate is resolved per variant
			// during matrix expansion.
			exc.When = attr.Expr
			continue
		}
		value, err := staticString(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("exclude matcher %q: %w", name, err)
		}
		exc.Match[name] = value
	}

	if len(exc.Match) == 0 && exc.When == nil {
		return nil, fmt.Errorf("exclude block must name an axis value or a when predicate")
	}
	return exc, nil
}

// translateStep converts a step block, splitting the env object expression
// into per-key expressions so each value can be evaluated per variant.
func (l *Loader) translateStep(s *schema.Step) (*config.Step, error) {
	step := &config.Step{
		Name:            s.Name,
		Run:             s.Run,
		ContinueOnError: s.ContinueOnError,
	}

	if s.Env != nil {
		pairs, diags := hcl.ExprMap(s.Env)
		if diags.HasErrors() {
			return nil, fmt.Errorf("step %q: env must be an object: %w", s.Name, diags)
		}
		if len(pairs) > 0 {
			step.Env = make(map[string]hcl.Expression, len(pairs))
			for _, pair := range pairs {
				key, err := staticString(pair.Key)
				if err != nil {
					return nil, fmt.Errorf("step %q: env key: %w", s.Name, err)
				}
				step.Env[key] = pair.Value
			}
		}
	}

	return step, nil
}

// staticString evaluates an expression without any variable scope and
// converts the result to a string. Used for values that must be known at
// load time (include assignments, exclude matchers, env keys).
func staticString(expr hcl.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("must be a static value: %w", diags)
	}
	converted, err := convert.Convert(val, cty.String)
	if err != nil || converted.IsNull() {
		return "", fmt.Errorf("must convert to string")
	}
	return converted.AsString(), nil
}

// staticBool evaluates an expression without any variable scope as a bool.
func staticBool(expr hcl.Expression) (bool, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return false, fmt.Errorf("must be a static value: %w", diags)
	}
	converted, err := convert.Convert(val, cty.Bool)
	if err != nil || converted.IsNull() {
		return false, fmt.Errorf("must convert to bool")
	}
	return converted.True(), nil
}

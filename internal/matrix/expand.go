package matrix

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/job"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// candidate is the mutable working form of a variant during expansion.
type candidate struct {
	keys            []string
	values          map[string]string
	continueOnError bool
}

func (c *candidate) set(key, value string) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Expand turns a matrix specification into the ordered sequence of job
// variants. See the package documentation for the expansion rules. It
// returns an InvalidSpecError when an axis has no values or axis names
// collide; a nil spec yields a single empty variant.
func Expand(spec *config.MatrixSpec) ([]*job.Variant, error) {
	if spec == nil {
		spec = &config.MatrixSpec{}
	}
	if err := validate(spec); err != nil {
		return nil, err
	}

	candidates := crossProduct(spec.Axes)

	// A spec defined purely by includes starts from nothing rather than
	// from the singleton empty combination.
	if len(spec.Axes) == 0 && len(spec.Includes) > 0 {
		candidates = nil
	}

	candidates, err := applyExcludes(candidates, spec.Excludes)
	if err != nil {
		return nil, err
	}

	candidates, err = applyIncludes(candidates, spec.Includes, spec.Axes)
	if err != nil {
		return nil, err
	}

	variants := make([]*job.Variant, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		v := job.NewVariant(c.keys, c.values, c.continueOnError)
		if seen[v.Label()] {
			return nil, invalidSpec("duplicate variant %q", v.Label())
		}
		seen[v.Label()] = true
		variants = append(variants, v)
	}
	return variants, nil
}

func validate(spec *config.MatrixSpec) error {
	seen := make(map[string]bool, len(spec.Axes))
	for _, axis := range spec.Axes {
		if axis.Name == "" {
			return invalidSpec("axis with empty name")
		}
		if seen[axis.Name] {
			return invalidSpec("duplicate axis %q", axis.Name)
		}
		seen[axis.Name] = true
		if len(axis.Values) == 0 {
			return invalidSpec("axis %q has no values", axis.Name)
		}
	}
	return nil
}

// crossProduct generates every combination of axis values. Iterating the
// accumulated list per axis makes the first declared axis vary slowest,
// which fixes the output ordering.
func crossProduct(axes []*config.Axis) []*candidate {
	combos := []*candidate{{values: map[string]string{}}}
	for _, axis := range axes {
		next := make([]*candidate, 0, len(combos)*len(axis.Values))
		for _, base := range combos {
			for _, value := range axis.Values {
				c := &candidate{
					keys:   append(append([]string(nil), base.keys...), axis.Name),
					values: make(map[string]string, len(base.values)+1),
				}
				for k, v := range base.values {
					c.values[k] = v
				}
				c.values[axis.Name] = value
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func applyExcludes(candidates []*candidate, excludes []*config.Exclude) ([]*candidate, error) {
	if len(excludes) == 0 {
		return candidates, nil
	}
	kept := candidates[:0]
	for _, c := range candidates {
		excluded := false
		for _, exc := range excludes {
			match, err := excludeMatches(exc, c)
			if err != nil {
				return nil, err
			}
			if match {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// excludeMatches reports whether a candidate is removed by one exclude
// rule. Every named axis value must equal the candidate's, and the when
// predicate, if any, must evaluate to true.
func excludeMatches(exc *config.Exclude, c *candidate) (bool, error) {
	for key, want := range exc.Match {
		if got, ok := c.values[key]; !ok || got != want {
			return false, nil
		}
	}
	if exc.When == nil {
		return len(exc.Match) > 0, nil
	}

	val, diags := exc.When.Value(EvalContext(c.values))
	if diags.HasErrors() {
		return false, &InvalidSpecError{Reason: "exclude when predicate", cause: diags}
	}
	converted, err := convert.Convert(val, cty.Bool)
	if err != nil || converted.IsNull() {
		return false, invalidSpec("exclude when predicate must produce a bool, got %s", val.Type().FriendlyName())
	}
	return converted.True(), nil
}

// applyIncludes merges each include into every matching candidate, or
// appends it as a new variant when nothing matches. Matching considers
// only keys that name declared axes; remaining keys are extra values.
func applyIncludes(candidates []*candidate, includes []*config.Include, axes []*config.Axis) ([]*candidate, error) {
	axisNames := make(map[string]bool, len(axes))
	for _, axis := range axes {
		axisNames[axis.Name] = true
	}

	for _, inc := range includes {
		var axisKeys, extraKeys []string
		for key := range inc.Values {
			if axisNames[key] {
				axisKeys = append(axisKeys, key)
			} else {
				extraKeys = append(extraKeys, key)
			}
		}
		sort.Strings(extraKeys)

		merged := false
		for _, c := range candidates {
			if matchesOnAxes(c, inc, axisKeys) {
				merged = true
				for _, key := range extraKeys {
					c.set(key, inc.Values[key])
				}
				if inc.ContinueOnError {
					c.continueOnError = true
				}
			}
		}
		if merged {
			continue
		}

		// No cross-product variant matches: the include defines a new
		// combination. Declared axes keep declaration order; extra keys
		// follow in sorted order for a deterministic label.
		appended := &candidate{values: map[string]string{}, continueOnError: inc.ContinueOnError}
		for _, axis := range axes {
			if value, ok := inc.Values[axis.Name]; ok {
				appended.set(axis.Name, value)
			}
		}
		for _, key := range extraKeys {
			appended.set(key, inc.Values[key])
		}
		candidates = append(candidates, appended)
	}
	return candidates, nil
}

func matchesOnAxes(c *candidate, inc *config.Include, axisKeys []string) bool {
	if len(axisKeys) == 0 {
		return false
	}
	for _, key := range axisKeys {
		if c.values[key] != inc.Values[key] {
			return false
		}
	}
	return true
}

// EvalContext builds the expression scope for one variant: its key-value
// assignments exposed as strings under the "matrix" object. It is shared
// by exclude predicates, runs_on/interpreter resolution, and step command
// templating.
func EvalContext(values map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(values))
	for key, value := range values {
		vars[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"matrix": cty.ObjectVal(vars)},
	}
}

// EvalString evaluates an expression against a variant scope and converts
// the result to a string.
func EvalString(expr hcl.Expression, values map[string]string) (string, error) {
	val, diags := expr.Value(EvalContext(values))
	if diags.HasErrors() {
		return "", fmt.Errorf("expression evaluation: %w", diags)
	}
	converted, err := convert.Convert(val, cty.String)
	if err != nil || converted.IsNull() {
		return "", fmt.Errorf("expression must produce a string, got %s", val.Type().FriendlyName())
	}
	return converted.AsString(), nil
}

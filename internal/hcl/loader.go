package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the workflow file at path and translates it into the
// agnostic model. A file must contain exactly one workflow block.
func (l *Loader) Load(ctx context.Context, path string) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root schema.File
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	if len(root.Workflows) != 1 {
		return nil, fmt.Errorf("workflow file %s must contain exactly one workflow block, found %d", path, len(root.Workflows))
	}

	workflow, err := l.translateWorkflow(root.Workflows[0])
	if err != nil {
		return nil, fmt.Errorf("invalid workflow in %s: %w", path, err)
	}

	logger.Debug("HCL loader finished.", "workflow", workflow.Name, "steps", len(workflow.Steps))
	return workflow, nil
}

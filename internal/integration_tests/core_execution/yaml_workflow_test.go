package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/app"
	"github.com/vk/matrixci/internal/testutil"
)

// TestCoreExecution_YAMLWorkflow validates that the hosted-CI-style YAML
// format runs through the same pipeline as HCL, exclude rules included.
func TestCoreExecution_YAMLWorkflow(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	workflowYAML := `
name: release
runs_on: os
matrix:
  os: [linux, windows]
  arch: [amd64, arm64]
  exclude:
    - os: windows
      arch: arm64
steps:
  - name: build
    run: go build -o out-${matrix.arch}
`
	files := map[string]string{"release.yml": workflowYAML}

	var commands *testutil.FakeCommandRunner
	var provisioner *testutil.FakeProvisioner

	// --- Act ---
	result := testutil.RunWorkflowTest(t, files, func(a *app.App) {
		commands = a.Commands.(*testutil.FakeCommandRunner)
		provisioner = a.Provisioner.(*testutil.FakeProvisioner)
	})

	// --- Assert ---
	require.NoError(t, result.Err, "app.Run() returned an unexpected error")

	// The excluded windows/arm64 variant never ran.
	calls := commands.Calls()
	require.Len(t, calls, 3)

	assert.Contains(t, result.LogOutput, "os=linux, arch=arm64")
	assert.NotContains(t, result.LogOutput, "os=windows, arch=arm64")

	// runs_on named the os axis, so provisioning followed it.
	specs := provisioner.AcquiredSpecs()
	assert.ElementsMatch(t, []string{"linux/", "linux/", "windows/"}, specs)
}

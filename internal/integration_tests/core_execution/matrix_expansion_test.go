package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/app"
	"github.com/vk/matrixci/internal/testutil"
)

// TestCoreExecution_MatrixExpansion validates that a two-axis workflow is
// expanded into the full cross product and every variant runs every step.
func TestCoreExecution_MatrixExpansion(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	workflowHCL := `
		workflow "ci" {
			matrix {
				axis "os" {
					values = ["ubuntu", "macos"]
				}
				axis "python" {
					values = ["3.9", "3.10"]
				}
			}

			step "test" {
				run = "pytest --python ${matrix.python}"
			}
		}
	`
	files := map[string]string{"ci.hcl": workflowHCL}

	var commands *testutil.FakeCommandRunner

	// --- Act ---
	result := testutil.RunWorkflowTest(t, files, func(a *app.App) {
		commands = a.Commands.(*testutil.FakeCommandRunner)
	})

	// --- Assert ---
	require.NoError(t, result.Err, "app.Run() returned an unexpected error")

	calls := commands.Calls()
	require.Len(t, calls, 4, "expected one command per matrix variant")

	rendered := make([]string, 0, len(calls))
	for _, call := range calls {
		rendered = append(rendered, call.Command)
	}
	assert.ElementsMatch(t, []string{
		"pytest --python 3.9",
		"pytest --python 3.10",
		"pytest --python 3.9",
		"pytest --python 3.10",
	}, rendered)

	assert.Contains(t, result.LogOutput, "os=ubuntu, python=3.9")
	assert.Contains(t, result.LogOutput, "os=macos, python=3.10")
	assert.Contains(t, result.LogOutput, "overall: success")
}

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/app"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/hcl"
	"github.com/vk/matrixci/internal/yamlconf"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// Loaders returns the full loader registration, the same one the CLI
// entrypoint installs.
func Loaders() map[string]config.Loader {
	yamlLoader := yamlconf.NewLoader()
	return map[string]config.Loader{
		".hcl":  hcl.NewLoader(),
		".yml":  yamlLoader,
		".yaml": yamlLoader,
	}
}

// RunWorkflowTest provides a standardized harness for running integration
// tests with fake external capabilities and a default background context.
func RunWorkflowTest(t *testing.T, files map[string]string, configure func(*app.App)) *HarnessResult {
	t.Helper()
	return RunWorkflowTestWithContext(context.Background(), t, files, configure)
}

// RunWorkflowTestWithContext writes the given workflow files into a
// temporary directory, builds an App over them, installs fake provisioner
// and command capabilities, applies configure, and runs the app.
func RunWorkflowTestWithContext(ctx context.Context, t *testing.T, files map[string]string, configure func(*app.App)) *HarnessResult {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", ".tmp-integration-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig := &app.Config{
		WorkflowPath: tmpDir,
		Workers:      4,
		GracePeriod:  time.Second,
		LogLevel:     "debug",
		LogFormat:    "text",
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				if os.Getenv("MATRIXCI_TEST_LOGS") == "true" {
					t.Logf("--- HARNESS RECOVERED PANIC ---\n%q", fmt.Sprintf("%v", r))
				}
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, Loaders())
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			App:       nil,
		}
	}

	// External capabilities default to fakes; configure may replace them
	// or reach into the fakes to script outcomes.
	testApp.Provisioner = NewFakeProvisioner()
	testApp.Commands = NewFakeCommandRunner()
	if configure != nil {
		configure(testApp)
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("MATRIXCI_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}

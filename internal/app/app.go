package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/fsutil"
	"github.com/vk/matrixci/internal/provision"
	"github.com/vk/matrixci/internal/runner"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	workflows  []*config.Workflow
	httpServer *http.Server

	// Provisioner and Commands are the engine's external capabilities.
	// NewApp installs the host-local implementations; tests replace them
	// before calling Run.
	Provisioner provision.Provisioner
	Commands    runner.CommandRunner
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with every workflow description already loaded and
// translated; a failure to load is a fatal startup error and panics.
func NewApp(outW io.Writer, appConfig *Config, loaders map[string]config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	files, err := discoverWorkflowFiles(appConfig.WorkflowPath, loaders)
	if err != nil {
		panic(fmt.Errorf("failed to locate workflow files: %w", err))
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	var workflows []*config.Workflow
	for _, file := range files {
		loader := loaders[filepath.Ext(file)]
		workflow, err := loader.Load(ctx, file)
		if err != nil {
			panic(fmt.Errorf("failed to load workflow: %w", err))
		}
		workflows = append(workflows, workflow)
	}
	logger.Debug("All workflows loaded and translated into unified model.", "count", len(workflows))

	return &App{
		outW:        outW,
		logger:      logger,
		config:      appConfig,
		workflows:   workflows,
		Provisioner: provision.NewLocal(),
		Commands:    runner.NewShell(appConfig.GracePeriod),
	}
}

// Workflows returns the loaded workflow models. This is primarily for testing.
func (a *App) Workflows() []*config.Workflow {
	return a.workflows
}

// discoverWorkflowFiles resolves the configured path to the list of
// workflow files, honoring only extensions a loader is registered for.
func discoverWorkflowFiles(path string, loaders map[string]config.Loader) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if _, ok := loaders[filepath.Ext(path)]; !ok {
			return nil, fmt.Errorf("no loader registered for %q", filepath.Ext(path))
		}
		return []string{path}, nil
	}

	extensions := make([]string, 0, len(loaders))
	for ext := range loaders {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)

	files, err := fsutil.FindFilesByExtension(path, extensions...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files found under %s", path)
	}
	return files, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/matrixci/internal/app"
	"github.com/vk/matrixci/internal/cli"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/hcl"
	"github.com/vk/matrixci/internal/yamlconf"
)

// main is the entrypoint for the matrixci application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical config errors, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(outW, "A critical startup error occurred: %v\n", r)
			os.Exit(1)
		}
	}()

	// Register the concrete loaders; the file extension selects one.
	yamlLoader := yamlconf.NewLoader()
	loaders := map[string]config.Loader{
		".hcl":  hcl.NewLoader(),
		".yml":  yamlLoader,
		".yaml": yamlLoader,
	}
	matrixciApp := app.NewApp(outW, appConfig, loaders)

	// SIGINT/SIGTERM is the workflow-level cancellation signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return matrixciApp.Run(ctx)
}

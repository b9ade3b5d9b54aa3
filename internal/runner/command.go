package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/vk/matrixci/internal/provision"
)

// CommandResult is the captured outcome of one subprocess invocation.
type CommandResult struct {
	ExitCode int
	Output   []byte
}

// CommandRunner is the opaque subprocess capability: run one command
// inside an environment and capture its exit code and combined output.
type CommandRunner interface {
	Run(ctx context.Context, command string, env *provision.Environment, extraEnv []string) (*CommandResult, error)
}

// Shell runs commands through the host shell inside the environment's
// working directory. On cancellation the subprocess receives SIGTERM and,
// after the grace period, is forcibly killed.
type Shell struct {
	// Grace bounds how long a cancelled command may linger before its
	// process is reclaimed.
	Grace time.Duration
}

// NewShell creates a shell command runner with the given grace period.
func NewShell(grace time.Duration) *Shell {
	return &Shell{Grace: grace}
}

// Run implements CommandRunner. A non-zero exit is not an error: it is
// reported through CommandResult so the caller owns the failure policy.
func (s *Shell) Run(ctx context.Context, command string, env *provision.Environment, extraEnv []string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = env.WorkDir
	cmd.Env = append(append([]string(nil), env.Env...), extraEnv...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// Ask politely first; WaitDelay escalates to SIGKILL after the grace
	// window so a stuck step cannot hold the worker forever.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.Grace

	err := cmd.Run()
	if ctx.Err() != nil {
		return &CommandResult{ExitCode: -1, Output: output.Bytes()}, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandResult{ExitCode: exitErr.ExitCode(), Output: output.Bytes()}, nil
		}
		return nil, err
	}
	return &CommandResult{ExitCode: 0, Output: output.Bytes()}, nil
}

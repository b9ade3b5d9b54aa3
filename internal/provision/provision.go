// Package provision defines the environment provisioner capability: the
// external collaborator that prepares and reclaims the isolated execution
// context for one job. The engine treats it as an acquire/release pair and
// never shares an environment between jobs.
package provision

import (
	"context"
	"fmt"
)

// Environment is one provisioned, isolated execution context.
type Environment struct {
	// ID uniquely identifies the environment for the duration of its life.
	ID string
	// OSImage is the image the environment was provisioned from.
	OSImage string
	// Interpreter is the interpreter version prepared in the environment.
	Interpreter string
	// WorkDir is the environment's isolated working directory.
	WorkDir string
	// Env is the complete process environment for subprocesses run inside.
	Env []string
}

// Provisioner acquires and releases isolated execution environments.
type Provisioner interface {
	// Acquire prepares an environment for the requested OS image and
	// interpreter version. Failures are returned as *Error and are
	// terminal for the requesting job only.
	Acquire(ctx context.Context, osImage, interpreter string) (*Environment, error)

	// Release reclaims a previously acquired environment. Release is
	// best-effort; it must be safe to call exactly once per Acquire.
	Release(ctx context.Context, env *Environment) error
}

// Error reports a failed environment acquisition.
type Error struct {
	OSImage     string
	Interpreter string
	Cause       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning %s/%s: %v", e.OSImage, e.Interpreter, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

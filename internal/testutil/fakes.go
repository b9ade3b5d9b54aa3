package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/matrixci/internal/provision"
	"github.com/vk/matrixci/internal/runner"
)

// FakeProvisioner is an in-memory Provisioner that records every acquire
// and release and can be told to fail specific OS images.
type FakeProvisioner struct {
	mu       sync.Mutex
	next     int
	acquired []string
	released []string
	specs    []string

	// FailImages maps OS image names to rejection; acquiring one returns
	// a *provision.Error.
	FailImages map[string]bool
}

// NewFakeProvisioner creates an always-succeeding fake provisioner.
func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{FailImages: make(map[string]bool)}
}

// Acquire implements provision.Provisioner.
func (p *FakeProvisioner) Acquire(ctx context.Context, osImage, interpreter string) (*provision.Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailImages[osImage] {
		return nil, &provision.Error{
			OSImage:     osImage,
			Interpreter: interpreter,
			Cause:       errors.New("image rejected by fake provisioner"),
		}
	}
	p.next++
	env := &provision.Environment{
		ID:          fmt.Sprintf("fake-env-%d", p.next),
		OSImage:     osImage,
		Interpreter: interpreter,
		Env: []string{
			fmt.Sprintf("MATRIXCI_OS=%s", osImage),
			fmt.Sprintf("MATRIXCI_INTERPRETER=%s", interpreter),
		},
	}
	p.acquired = append(p.acquired, env.ID)
	p.specs = append(p.specs, fmt.Sprintf("%s/%s", osImage, interpreter))
	return env, nil
}

// AcquiredSpecs returns "osImage/interpreter" for every successful
// acquisition, in acquisition order.
func (p *FakeProvisioner) AcquiredSpecs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.specs...)
}

// Release implements provision.Provisioner.
func (p *FakeProvisioner) Release(ctx context.Context, env *provision.Environment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, env.ID)
	return nil
}

// Acquired returns the IDs of every environment handed out so far.
func (p *FakeProvisioner) Acquired() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.acquired...)
}

// Released returns the IDs of every environment given back so far.
func (p *FakeProvisioner) Released() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}

// CommandCall records one invocation observed by FakeCommandRunner.
type CommandCall struct {
	Command  string
	EnvID    string
	ExtraEnv []string
}

// FakeCommandRunner is an in-memory CommandRunner. Unknown commands
// succeed with empty output; Results overrides specific commands. When
// Gate is non-nil every command blocks until the gate closes or the
// context is cancelled, which lets tests hold jobs in the Running state.
type FakeCommandRunner struct {
	mu        sync.Mutex
	calls     []CommandCall
	active    int
	maxActive int

	// Results maps an exact rendered command to its outcome.
	Results map[string]runner.CommandResult
	// Gate, when non-nil, blocks every command until closed.
	Gate chan struct{}
	// Started, when non-nil, receives each command as it begins.
	Started chan string
}

// NewFakeCommandRunner creates an always-succeeding fake command runner.
func NewFakeCommandRunner() *FakeCommandRunner {
	return &FakeCommandRunner{Results: make(map[string]runner.CommandResult)}
}

// Run implements runner.CommandRunner.
func (f *FakeCommandRunner) Run(ctx context.Context, command string, env *provision.Environment, extraEnv []string) (*runner.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, CommandCall{Command: command, EnvID: env.ID, ExtraEnv: append([]string(nil), extraEnv...)})
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.Gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.Started != nil {
		f.Started <- command
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &runner.CommandResult{ExitCode: -1}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return &runner.CommandResult{ExitCode: -1}, err
	}

	f.mu.Lock()
	result, ok := f.Results[command]
	f.mu.Unlock()
	if !ok {
		result = runner.CommandResult{ExitCode: 0}
	}
	return &result, nil
}

// Calls returns every invocation observed so far.
func (f *FakeCommandRunner) Calls() []CommandCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CommandCall(nil), f.calls...)
}

// MaxActive returns the highest number of simultaneously running
// commands observed, which bounds observed job concurrency from below.
func (f *FakeCommandRunner) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

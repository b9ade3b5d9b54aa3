package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/matrixci/internal/ctxlog"
)

// Local provisions environments on the host machine: an isolated temp
// working directory plus an environment variable overlay identifying the
// requested image and interpreter. It cannot boot other operating
// systems, so an optional image allow-list rejects requests the host
// cannot honor.
type Local struct {
	// AllowedImages, when non-empty, restricts which OS images Acquire
	// will honor. An empty list accepts any image.
	AllowedImages []string
	// BaseDir is the parent for per-environment work directories. Empty
	// means the system temp directory.
	BaseDir string
}

// NewLocal creates a host-local provisioner with no image restrictions.
func NewLocal() *Local {
	return &Local{}
}

// Acquire implements Provisioner.
func (p *Local) Acquire(ctx context.Context, osImage, interpreter string) (*Environment, error) {
	logger := ctxlog.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.AllowedImages) > 0 && !contains(p.AllowedImages, osImage) {
		return nil, &Error{
			OSImage:     osImage,
			Interpreter: interpreter,
			Cause:       errors.New("image not available on this host"),
		}
	}

	workDir, err := os.MkdirTemp(p.BaseDir, "matrixci-env-*")
	if err != nil {
		return nil, &Error{OSImage: osImage, Interpreter: interpreter, Cause: err}
	}

	env := &Environment{
		ID:          uuid.NewString(),
		OSImage:     osImage,
		Interpreter: interpreter,
		WorkDir:     workDir,
		Env: append(os.Environ(),
			fmt.Sprintf("MATRIXCI_OS=%s", osImage),
			fmt.Sprintf("MATRIXCI_INTERPRETER=%s", interpreter),
		),
	}
	logger.Debug("Environment acquired.", "envID", env.ID, "os", osImage, "interpreter", interpreter, "workDir", workDir)
	return env, nil
}

// Release implements Provisioner by removing the environment's work
// directory.
func (p *Local) Release(ctx context.Context, env *Environment) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Releasing environment.", "envID", env.ID)
	return os.RemoveAll(env.WorkDir)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

package build

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/websites-starter/wsbuild/internal/validation"
)

// Runner executes an external preprocessor command inside dir.
type Runner interface {
	Run(ctx context.Context, dir, command string, args ...string) ([]byte, error)
}

// DefaultAllowedCommands lists the executables a compiler config may name.
var DefaultAllowedCommands = map[string]bool{
	"sass":    true,
	"lessc":   true,
	"stylus":  true,
	"postcss": true,
	"npx":     true,
}

// ExecRunner runs commands with os/exec after validating them against an
// allowlist. No shell is involved, so arguments are only checked for
// control characters and paths leaving the project.
type ExecRunner struct {
	allowed map[string]bool
}

// NewExecRunner creates a runner restricted to allowed. A nil map selects
// DefaultAllowedCommands.
func NewExecRunner(allowed map[string]bool) *ExecRunner {
	if allowed == nil {
		allowed = DefaultAllowedCommands
	}
	return &ExecRunner{allowed: allowed}
}

// Run validates command and args, then runs the command with dir as its
// working directory and returns the combined output.
func (r *ExecRunner) Run(ctx context.Context, dir, command string, args ...string) ([]byte, error) {
	if err := r.validate(command, args); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s cancelled: %w", command, ctx.Err())
		}
		return output, fmt.Errorf("%s failed: %w", command, err)
	}

	return output, nil
}

func (r *ExecRunner) validate(command string, args []string) error {
	if err := validation.ValidateCommand(command, r.allowed); err != nil {
		return err
	}

	for _, arg := range args {
		if err := validation.ValidateOperand(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}

	return nil
}

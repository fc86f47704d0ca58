// Package command runs the network-control tool locally or on a remote host.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/google/shlex"
	"github.com/rs/zerolog"
)

// Runner executes the network-control tool with subcommand arguments.
// The error return is reserved for commands that could not run at all;
// a command that ran reports its exit code in the result.
type Runner interface {
	Execute(ctx context.Context, args ...string) (*models.CommandResult, error)
}

// Executor allows mocking exec.Command in tests.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, exitCode int, err error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its stdout and exit code.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return out, exitErr.ExitCode(), nil
	}
	if err != nil {
		return out, -1, err
	}
	return out, 0, nil
}

// Local runs the tool on this machine.
type Local struct {
	tool     []string
	executor Executor
	logger   zerolog.Logger
}

// ParseTool splits a tool command line such as "m wifi" into argv.
func ParseTool(tool string) ([]string, error) {
	argv, err := shlex.Split(tool)
	if err != nil {
		return nil, fmt.Errorf("invalid tool command %q: %w", tool, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("tool command is empty")
	}
	return argv, nil
}

// NewLocal creates a runner for the given tool command line.
func NewLocal(logger zerolog.Logger, tool string) (*Local, error) {
	return NewLocalWithExecutor(logger, tool, &DefaultExecutor{})
}

// NewLocalWithExecutor creates a local runner with a custom executor (for testing).
func NewLocalWithExecutor(logger zerolog.Logger, tool string, executor Executor) (*Local, error) {
	argv, err := ParseTool(tool)
	if err != nil {
		return nil, err
	}
	return &Local{
		tool:     argv,
		executor: executor,
		logger:   logger,
	}, nil
}

// Execute runs the tool with args appended to its command line.
func (r *Local) Execute(ctx context.Context, args ...string) (*models.CommandResult, error) {
	full := make([]string, 0, len(r.tool)-1+len(args))
	full = append(full, r.tool[1:]...)
	full = append(full, args...)

	r.logger.Debug().
		Str("tool", r.tool[0]).
		Str("subcommand", subcommand(args)).
		Msg("running network tool")

	out, code, err := r.executor.Execute(ctx, r.tool[0], full...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", r.tool[0], err)
	}

	r.logger.Debug().Int("exit_code", code).Int("stdout_bytes", len(out)).Msg("network tool finished")

	return &models.CommandResult{ExitCode: code, Stdout: out}, nil
}

// subcommand names the operation without leaking credentials into logs.
func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

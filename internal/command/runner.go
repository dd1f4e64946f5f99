package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/stwalsh4118/integrity/internal/logging"
)

// waitDelay bounds how long a cancelled command may keep its output pipes
// open through child processes it spawned
const waitDelay = 2 * time.Second

// Runner executes commands. Implementations carry an optional working
// directory; In returns a copy scoped to another one.
type Runner interface {
	// Run executes cmd and reports a nonzero exit through Result.
	// An error is returned only when the process could not be run at all.
	Run(ctx context.Context, cmd Command) (*Result, error)
	// RunChecked executes cmd and returns an *ExitError on nonzero exit.
	RunChecked(ctx context.Context, cmd Command) (*Result, error)
	// In returns a Runner whose commands execute inside dir.
	In(dir string) Runner
}

// execRunner implements Runner with os/exec
type execRunner struct {
	dir    string
	logger logging.Logger
}

// NewRunner creates a Runner that spawns real processes
func NewRunner(logger logging.Logger) (Runner, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &execRunner{
		logger: logger.With("component", "command_runner"),
	}, nil
}

// Run executes the command and captures its output
func (r *execRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = r.dir
	c.WaitDelay = waitDelay
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// A killed process looks like a nonzero exit; report the cancellation instead
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.logger.Warn("command cancelled", "command", cmd.String(), "dir", r.dir, "duration_ms", duration.Milliseconds())
			return nil, fmt.Errorf("failed to run %q: %w", cmd.String(), ctxErr)
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.logger.Error("failed to run command", "command", cmd.String(), "dir", r.dir, "error", err)
			return nil, fmt.Errorf("failed to run %q: %w", cmd.String(), err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("ran command", "command", cmd.String(), "dir", r.dir, "exit_code", result.ExitCode, "duration_ms", duration.Milliseconds())
	return result, nil
}

// RunChecked executes the command and fails on a nonzero exit status
func (r *execRunner) RunChecked(ctx context.Context, cmd Command) (*Result, error) {
	result, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if !result.Success() {
		r.logger.Warn("command failed", "command", cmd.String(), "dir", r.dir, "exit_code", result.ExitCode)
		return result, &ExitError{
			Command:  cmd,
			Dir:      r.dir,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	return result, nil
}

// In returns a runner scoped to dir
func (r *execRunner) In(dir string) Runner {
	return &execRunner{
		dir:    dir,
		logger: r.logger,
	}
}

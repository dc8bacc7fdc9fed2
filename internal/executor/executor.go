// Package executor runs external commands with a hard wall-clock timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

const (
	// ExitCodeTimeout is reported when the command exceeded its timeout
	ExitCodeTimeout = -1
	// ExitCodeSpawnFailure is reported when the command could not be started
	ExitCodeSpawnFailure = -2
)

// Result encapsulates the outcome of a single command execution
type Result struct {
	Command  string        `json:"command"`
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Runner abstracts command execution so pipelines can be tested without
// spawning real processes.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) Result
}

// Executor runs shell command strings as external processes
type Executor struct {
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New creates an Executor with the given default timeout
func New(defaultTimeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Run executes a command string through the shell and waits for it to finish.
// A timeout of zero falls back to the executor's default. The child process is
// killed when the timeout expires; stdout and stderr are returned complete,
// never streamed.
func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) Result {
	effective := timeout
	if effective <= 0 {
		effective = e.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, effective)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		// Timeout and cancellation both surface here once the child is killed
		if ctx.Err() != nil {
			e.logger.Warn("command timed out",
				zap.String("command", command),
				zap.Duration("timeout", effective))
			return Result{
				Command:  command,
				Success:  false,
				Stdout:   stdout.String(),
				Stderr:   fmt.Sprintf("timeout expired after %ds", int(effective.Seconds())),
				ExitCode: ExitCodeTimeout,
				Duration: duration,
			}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				Command:  command,
				Success:  false,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				ExitCode: exitErr.ExitCode(),
				Duration: duration,
			}
		}

		e.logger.Error("command failed to start",
			zap.String("command", command),
			zap.Error(err))
		return Result{
			Command:  command,
			Success:  false,
			Stdout:   stdout.String(),
			Stderr:   err.Error(),
			ExitCode: ExitCodeSpawnFailure,
			Duration: duration,
		}
	}

	return Result{
		Command:  command,
		Success:  true,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
		Duration: duration,
	}
}

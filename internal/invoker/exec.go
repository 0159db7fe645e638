package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Exec runs commands as real child processes.
type Exec struct {
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// Option customizes an Exec invoker.
type Option func(*Exec)

// WithOutput redirects the streamed tool output (defaults to the console).
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Exec) {
		if stdout != nil {
			e.stdout = stdout
		}
		if stderr != nil {
			e.stderr = stderr
		}
	}
}

// NewExec builds an invoker that streams tool output to the console.
func NewExec(logger *zap.Logger, opts ...Option) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exec{stdout: os.Stdout, stderr: os.Stderr, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the tool and waits for it. Cancelling ctx terminates the whole
// process group and yields ErrAborted.
func (e *Exec) Run(ctx context.Context, cmd Command) error {
	if cmd.Tool == "" {
		return fmt.Errorf("invoker: tool is required")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invoker: %s: %w: %w", cmd.Tool, ErrAborted, err)
	}
	proc := exec.Command(cmd.Tool, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	proc.Stdin = nil
	proc.Stdout = e.stdout
	proc.Stderr = e.stderr
	configureProcess(proc)

	log := e.logger.With(zap.String("tool", cmd.Tool), zap.Strings("args", cmd.Args), zap.String("dir", cmd.Dir))
	log.Debug("starting tool")
	started := time.Now()
	if err := proc.Start(); err != nil {
		log.Warn("tool failed to start", zap.Error(err))
		return &ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: -1, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		terminate(proc)
		<-done
		log.Warn("tool aborted", zap.Duration("elapsed", time.Since(started)))
		return fmt.Errorf("invoker: %s: %w: %w", cmd.Tool, ErrAborted, ctx.Err())
	case err = <-done:
	}

	elapsed := time.Since(started)
	if err == nil {
		log.Debug("tool finished", zap.Duration("elapsed", elapsed))
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: -1, Err: err}
	}
	code := exitErr.ExitCode()
	if code < 0 {
		// Killed by a signal rather than exiting on its own.
		log.Warn("tool terminated by signal", zap.Duration("elapsed", elapsed))
		return &ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: -1, Err: fmt.Errorf("%w: %v", ErrAborted, err)}
	}
	log.Info("tool failed", zap.Int("exit_code", code), zap.Duration("elapsed", elapsed))
	return &ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: code, Err: err}
}

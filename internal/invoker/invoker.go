package invoker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrToolFailure matches every non-zero exit reported by an Invoker.
	ErrToolFailure = errors.New("tool failure")
	// ErrAborted is returned when a tool is cancelled or killed by a signal.
	ErrAborted = errors.New("tool aborted")
)

// Command describes one external tool invocation.
type Command struct {
	Tool string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
}

// String renders the command line for logs and dry runs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Tool))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

func quote(value string) string {
	if value == "" || strings.ContainsAny(value, " \t\"'") {
		return strconv.Quote(value)
	}
	return value
}

// Invoker runs a command to completion and reports failure through the
// returned error.
type Invoker interface {
	Run(ctx context.Context, cmd Command) error
}

// ToolFailure reports a tool that exited with a non-zero status or could not
// be started at all (ExitCode -1).
type ToolFailure struct {
	Tool     string
	Args     []string
	ExitCode int
	Err      error
}

func (e *ToolFailure) Error() string {
	if e == nil {
		return ""
	}
	if e.ExitCode < 0 {
		return fmt.Sprintf("invoker: %s could not run: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("invoker: %s exited with status %d", e.Tool, e.ExitCode)
}

func (e *ToolFailure) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrToolFailure) match any *ToolFailure.
func (e *ToolFailure) Is(target error) bool { return target == ErrToolFailure }

// ExitCode extracts the exit status carried by err. It returns 0 for nil and
// 1 for errors that do not carry a usable status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var failure *ToolFailure
	if errors.As(err, &failure) && failure.ExitCode > 0 {
		return failure.ExitCode
	}
	return 1
}

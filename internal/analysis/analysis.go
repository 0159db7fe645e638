// Package analysis runs the static analyzers against the source tree. The
// analyzers are siblings: any subset may run in any order, and one failing
// never prevents another from being invoked.
package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
)

// Analyzer names one static analysis tool.
type Analyzer string

const (
	Mypy    Analyzer = "mypy"
	Pyright Analyzer = "pyright"
	Pylint  Analyzer = "pylint"
)

// Runner invokes analyzers installed in an environment.
type Runner struct {
	invoker    invoker.Invoker
	projectDir string
	logger     *zap.Logger
}

// NewRunner builds a Runner that executes tools from projectDir.
func NewRunner(inv invoker.Invoker, projectDir string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{invoker: inv, projectDir: projectDir, logger: logger}
}

// Mypy type checks the tree. Extra args replace the default target ".".
func (r *Runner) Mypy(ctx context.Context, e *env.Environment, args ...string) error {
	return r.Run(ctx, e, Mypy, args...)
}

// Pyright type checks the tree using the project's pyright configuration.
func (r *Runner) Pyright(ctx context.Context, e *env.Environment, args ...string) error {
	return r.Run(ctx, e, Pyright, args...)
}

// Pylint lints target (a package or path).
func (r *Runner) Pylint(ctx context.Context, e *env.Environment, target string) error {
	if target == "" {
		return fmt.Errorf("analysis: pylint target is required")
	}
	return r.Run(ctx, e, Pylint, target)
}

// Run invokes a single analyzer.
func (r *Runner) Run(ctx context.Context, e *env.Environment, a Analyzer, args ...string) error {
	if e == nil {
		return fmt.Errorf("analysis: environment is required")
	}
	cmd, err := r.command(e, a, args)
	if err != nil {
		return err
	}
	r.logger.Info("running analyzer", zap.String("analyzer", string(a)))
	if err := r.invoker.Run(ctx, cmd); err != nil {
		return fmt.Errorf("analysis: %s: %w", a, err)
	}
	return nil
}

func (r *Runner) command(e *env.Environment, a Analyzer, args []string) (invoker.Command, error) {
	cmd := invoker.Command{Dir: r.projectDir}
	switch a {
	case Mypy:
		if len(args) == 0 {
			args = []string{"."}
		}
		cmd.Tool = e.Python()
		cmd.Args = append([]string{"-m", "mypy"}, args...)
	case Pyright:
		cmd.Tool = e.Bin("pyright")
		cmd.Args = args
	case Pylint:
		cmd.Tool = e.Python()
		cmd.Args = append([]string{"-m", "pylint"}, args...)
	default:
		return cmd, fmt.Errorf("analysis: unknown analyzer %q", a)
	}
	return cmd, nil
}

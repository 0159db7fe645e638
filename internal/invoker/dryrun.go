package invoker

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DryRun prints each command instead of running it.
type DryRun struct {
	Out io.Writer
}

// Run implements Invoker.
func (d DryRun) Run(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invoker: %s: %w: %w", cmd.Tool, ErrAborted, err)
	}
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	if cmd.Dir != "" {
		_, err := fmt.Fprintf(out, "+ (cd %s) %s\n", cmd.Dir, cmd)
		return err
	}
	_, err := fmt.Fprintf(out, "+ %s\n", cmd)
	return err
}

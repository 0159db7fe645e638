// cmd/stubflow/main.go
//
// Entry point for the stubflow CLI. Every positional argument is a phase
// name: `stubflow install_in_env` resolves the phase's prerequisites and
// runs them in order. Subcommands cover listing, planning, the interactive
// picker and project initialization.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

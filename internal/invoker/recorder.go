package invoker

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Recorder is an in-memory Invoker for tests. It records every command and
// answers with scripted behaviour registered through On/FailOn.
type Recorder struct {
	mu    sync.Mutex
	calls []Command
	rules []rule
}

type rule struct {
	match string
	fn    func(Command) error
}

// NewRecorder returns a Recorder where every command succeeds.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// On registers fn for commands whose rendered line contains match. Later
// registrations take precedence.
func (r *Recorder) On(match string, fn func(Command) error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, fn: fn})
	return r
}

// FailOn makes matching commands exit with code.
func (r *Recorder) FailOn(match string, code int) *Recorder {
	return r.On(match, func(cmd Command) error {
		return &ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: code, Err: fmt.Errorf("exit status %d", code)}
	})
}

// Run implements Invoker.
func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invoker: %s: %w: %w", cmd.Tool, ErrAborted, err)
	}
	r.mu.Lock()
	clone := cmd
	clone.Args = append([]string(nil), cmd.Args...)
	r.calls = append(r.calls, clone)
	var fn func(Command) error
	line := cmd.String()
	for i := len(r.rules) - 1; i >= 0; i-- {
		if strings.Contains(line, r.rules[i].match) {
			fn = r.rules[i].fn
			break
		}
	}
	r.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(clone)
}

// Calls returns the recorded commands in invocation order.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// Lines returns the recorded command lines.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, call := range calls {
		lines[i] = call.String()
	}
	return lines
}

// Reset forgets recorded calls but keeps the scripted rules.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

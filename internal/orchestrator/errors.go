package orchestrator

import (
	"errors"
	"fmt"

	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/phase"
)

// Exit codes for failures that carry no tool exit status.
const (
	ExitFailure      = 1
	ExitUnknownPhase = 2
)

// PhaseError reports the phase and step where a dispatch stopped. Index is
// the failing step's position within the phase.
type PhaseError struct {
	Phase string
	Op    string
	Index int
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: step %d (%s): %v", e.Phase, e.Index+1, e.Op, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// ExitCode maps a dispatch error to a process exit status: 0 on success,
// ExitUnknownPhase for an undeclared phase, the tool's own status when a
// tool failed, ExitFailure otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, phase.ErrUnknownPhase):
		return ExitUnknownPhase
	default:
		return invoker.ExitCode(err)
	}
}

package step

import (
	"errors"
	"fmt"
)

// Info describes a step operation's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	// Tolerates lists errors that mean the step's goal already holds. The
	// orchestrator reports such a step as satisfied instead of failed.
	Tolerates []error
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("step: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("step: name is required for %s", i.ID)
	}
	return nil
}

// Tolerated reports whether err is one of the benign errors in Tolerates.
func (i Info) Tolerated(err error) bool {
	if err == nil {
		return false
	}
	for _, benign := range i.Tolerates {
		if errors.Is(err, benign) {
			return true
		}
	}
	return false
}

// Step is one atomic unit of a phase, usually a single external tool call.
type Step interface {
	Info() Info
	Run(ctx *Context) error
}

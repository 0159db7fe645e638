// Package phase declares the phase graph: named phases, the phases each one
// requires, and the ordered steps each one runs.
package phase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownPhase is returned for a phase name the graph does not declare.
	ErrUnknownPhase = errors.New("phase: unknown phase")
	// ErrCycle is returned when requires edges form a loop.
	ErrCycle = errors.New("phase: dependency cycle")
	// ErrInvalidDefinition marks any other malformed graph.
	ErrInvalidDefinition = errors.New("phase: invalid definition")
)

// UnknownPhaseError names the requested phase and what is available.
type UnknownPhaseError struct {
	Name  string
	Known []string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("phase: unknown phase %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Is matches ErrUnknownPhase.
func (e *UnknownPhaseError) Is(target error) bool { return target == ErrUnknownPhase }

// CycleError carries one cycle as a closed path, e.g. [a b a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "phase: dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Is matches ErrCycle.
func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// Definition is a complete phase graph.
type Definition struct {
	Version int     `json:"version" yaml:"version"`
	Phases  []Phase `json:"phases" yaml:"phases"`
}

// Phase is a named unit of work with declared prerequisites.
type Phase struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Requires    []string  `json:"requires,omitempty" yaml:"requires,omitempty"`
	Steps       []StepRef `json:"steps" yaml:"steps"`
	// Aggregate phases attempt every step and join the failures instead of
	// stopping at the first one.
	Aggregate bool `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// StepRef points at a registered step operation plus its configuration.
type StepRef struct {
	Op   string         `json:"op" yaml:"op"`
	With map[string]any `json:"with,omitempty" yaml:"with,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{Version: def.Version}
	if len(def.Phases) > 0 {
		clone.Phases = make([]Phase, len(def.Phases))
		for i, p := range def.Phases {
			clone.Phases[i] = p.Clone()
		}
	}
	return clone
}

// Clone returns a deep copy of the phase.
func (p Phase) Clone() Phase {
	clone := Phase{Name: p.Name, Description: p.Description, Aggregate: p.Aggregate}
	if len(p.Requires) > 0 {
		clone.Requires = append([]string(nil), p.Requires...)
	}
	if len(p.Steps) > 0 {
		clone.Steps = make([]StepRef, len(p.Steps))
		for i, ref := range p.Steps {
			clone.Steps[i] = StepRef{Op: ref.Op, With: cloneMap(ref.With)}
		}
	}
	return clone
}

// Names returns phase names in declaration order.
func (def Definition) Names() []string {
	names := make([]string, 0, len(def.Phases))
	for _, p := range def.Phases {
		names = append(names, p.Name)
	}
	return names
}

// Lookup finds a phase by name.
func (def Definition) Lookup(name string) (Phase, error) {
	for _, p := range def.Phases {
		if p.Name == name {
			return p, nil
		}
	}
	return Phase{}, &UnknownPhaseError{Name: name, Known: def.Names()}
}

// Validate ensures names are unique, every requirement is declared, every
// step names an operation and the requires edges are acyclic.
func (def Definition) Validate() error {
	if len(def.Phases) == 0 {
		return fmt.Errorf("%w: at least one phase is required", ErrInvalidDefinition)
	}
	seen := make(map[string]struct{}, len(def.Phases))
	for idx, p := range def.Phases {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: phase[%d]: name is required", ErrInvalidDefinition, idx)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate phase %s", ErrInvalidDefinition, p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Steps) == 0 {
			return fmt.Errorf("%w: phase %s: at least one step is required", ErrInvalidDefinition, p.Name)
		}
		for i, ref := range p.Steps {
			if strings.TrimSpace(ref.Op) == "" {
				return fmt.Errorf("%w: phase %s step[%d]: op is required", ErrInvalidDefinition, p.Name, i)
			}
		}
	}
	for _, p := range def.Phases {
		for _, req := range p.Requires {
			if _, ok := seen[req]; !ok {
				return fmt.Errorf("%w: phase %s requires undeclared phase %s", ErrInvalidDefinition, p.Name, req)
			}
		}
	}
	return def.acyclic()
}

// acyclic walks phases in declaration order and their requires in listed
// order, so the reported cycle is the same on every run.
func (def Definition) acyclic() error {
	const (
		white = iota
		gray
		black
	)
	index := make(map[string]int, len(def.Phases))
	for i, p := range def.Phases {
		index[p.Name] = i
	}
	color := make([]int, len(def.Phases))
	var stack []string
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		stack = append(stack, def.Phases[i].Name)
		for _, req := range def.Phases[i].Requires {
			j := index[req]
			switch color[j] {
			case white:
				if visit(j) {
					return true
				}
			case gray:
				for k, name := range stack {
					if name == req {
						cycle = append(append([]string(nil), stack[k:]...), req)
						break
					}
				}
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := range def.Phases {
		if color[i] == white && visit(i) {
			return &CycleError{Path: cycle}
		}
	}
	return nil
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Package resolver orders phases so every prerequisite runs before the phase
// that requires it.
package resolver

import (
	"fmt"

	"github.com/kingrea/stubflow/internal/phase"
)

// Resolver plans dispatches against a validated phase graph.
type Resolver struct {
	definition phase.Definition
	phases     map[string]phase.Phase
}

// New validates def and returns a Resolver for it.
func New(def phase.Definition) (*Resolver, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	clone := def.Clone()
	phases := make(map[string]phase.Phase, len(clone.Phases))
	for _, p := range clone.Phases {
		phases[p.Name] = p
	}
	return &Resolver{definition: clone, phases: phases}, nil
}

// Definition returns a clone of the resolver's graph.
func (r *Resolver) Definition() phase.Definition {
	return r.definition.Clone()
}

// Phase returns the named phase.
func (r *Resolver) Phase(name string) (phase.Phase, bool) {
	p, ok := r.phases[name]
	return p, ok
}

// Plan returns the phases to run for target. With prerequisites, every
// transitive requirement is returned before the phases that need it, each
// exactly once, visiting requires in their listed order. Without, only the
// target is returned.
func (r *Resolver) Plan(target string, withPrerequisites bool) ([]string, error) {
	if _, ok := r.phases[target]; !ok {
		return nil, &phase.UnknownPhaseError{Name: target, Known: r.definition.Names()}
	}
	if !withPrerequisites {
		return []string{target}, nil
	}
	visited := make(map[string]bool, len(r.phases))
	ordered := make([]string, 0, len(r.phases))
	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		p, ok := r.phases[name]
		if !ok {
			return fmt.Errorf("phase: %s is not declared", name)
		}
		visited[name] = true
		for _, req := range p.Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		ordered = append(ordered, name)
		return nil
	}
	if err := visit(target); err != nil {
		return nil, err
	}
	return ordered, nil
}

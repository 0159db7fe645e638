package step

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config represents step-specific configuration (opaque to the runtime).
type Config map[string]any

// String returns the string value for key or def when unset.
func (c Config) String(key, def string) string {
	if v, ok := c[key]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return def
}

// Strings returns a list value for key. YAML sequences and comma-separated
// strings are both accepted. It returns def when the key is unset.
func (c Config) Strings(key string, def []string) []string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	var out []string
	switch typed := v.(type) {
	case []string:
		out = append(out, typed...)
	case []any:
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		out = strings.Split(typed, ",")
	default:
		out = []string{fmt.Sprint(typed)}
	}
	cleaned := out[:0]
	for _, item := range out {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

// Clone returns a shallow copy of the config map so a factory never holds
// the definition's own map.
func (c Config) Clone() Config {
	if len(c) == 0 {
		return nil
	}
	clone := make(Config, len(c))
	for key, value := range c {
		clone[key] = value
	}
	return clone
}

// Factory constructs a step with the provided configuration.
type Factory func(Config) (Step, error)

// Registry maintains known step factories keyed by operation ID.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a step factory. Returns an error if the ID already exists.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("step: id is required")
	}
	if factory == nil {
		return fmt.Errorf("step: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("step: %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Resolve constructs a step by operation ID.
func (r *Registry) Resolve(id string, cfg Config) (Step, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("step: unknown operation %s", id)
	}
	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", id, err)
	}
	if err := s.Info().Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// IDs returns a sorted list of registered operation identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

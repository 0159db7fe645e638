package phase

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultPhases []byte

// Default returns the built-in phase graph.
func Default() Definition {
	def, err := Parse(defaultPhases)
	if err != nil {
		panic(fmt.Sprintf("phase: built-in graph: %v", err))
	}
	return def
}

// DefaultYAML returns the built-in graph source, a starting point for a
// project-specific phases file.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultPhases...)
}

// Parse decodes and validates a phase graph from YAML bytes.
func Parse(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("%w: definition payload is empty", ErrInvalidDefinition)
	}
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("phase: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadReader reads a phase graph from r.
func LoadReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("phase: read definition: %w", err)
	}
	return Parse(content)
}

// LoadFile loads a phase graph from path.
func LoadFile(path string) (Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return Definition{}, fmt.Errorf("phase: read %s: %w", path, err)
	}
	defer file.Close()
	def, err := LoadReader(file)
	if err != nil {
		return Definition{}, fmt.Errorf("phase: %s: %w", path, err)
	}
	return def, nil
}

// Load returns the graph at path, or the built-in graph when path is empty.
func Load(path string) (Definition, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

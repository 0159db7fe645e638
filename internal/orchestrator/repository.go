package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrRecordNotFound is returned when no dispatch has been recorded yet.
var ErrRecordNotFound = errors.New("orchestrator: run record not found")

// RecordStore persists the report of the last dispatch. It is an audit
// trail only and never consulted to skip work.
type RecordStore interface {
	Load() (Report, error)
	Save(Report) error
}

// Repository stores the run record as JSON on disk.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the record file.
func (r *Repository) Path() string { return r.path }

// Load reads the persisted record if present.
func (r *Repository) Load() (Report, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Report{}, ErrRecordNotFound
		}
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("orchestrator: decode run record: %w", err)
	}
	return report, nil
}

// Save writes the record through a temp file and rename.
func (r *Repository) Save(report Report) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

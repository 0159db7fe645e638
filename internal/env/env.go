// Package env provisions the isolated Python environment the workflow tools
// run from: create it, install the package with its extras, and remove it.
package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/invoker"
)

const (
	markerFile        = "stubflow-env.json"
	installRecordFile = "stubflow-install.json"
)

var (
	// ErrEnvironmentExists is returned when the environment path is already
	// populated by something other than the requested environment.
	ErrEnvironmentExists = errors.New("env: environment path already populated")
	// ErrEnvironmentNotFound is returned when an environment path is missing.
	ErrEnvironmentNotFound = errors.New("env: environment not found")
	// ErrInstallFailure matches every *InstallFailure.
	ErrInstallFailure = errors.New("env: install failed")
)

// InstallFailure reports which install step broke.
type InstallFailure struct {
	Env  string
	Step string
	Err  error
}

func (e *InstallFailure) Error() string {
	return fmt.Sprintf("env: install into %s failed at %s: %v", e.Env, e.Step, e.Err)
}

func (e *InstallFailure) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInstallFailure) match any *InstallFailure.
func (e *InstallFailure) Is(target error) bool { return target == ErrInstallFailure }

// Environment addresses one provisioned interpreter installation.
type Environment struct {
	Name string
	Root string
}

// Bin returns the path of an executable installed into the environment.
func (e *Environment) Bin(tool string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Root, "Scripts", tool+".exe")
	}
	return filepath.Join(e.Root, "bin", tool)
}

// Python returns the environment's interpreter.
func (e *Environment) Python() string {
	return e.Bin("python")
}

// Marker identifies an environment created by stubflow.
type Marker struct {
	Name      string    `json:"name"`
	Python    string    `json:"python"`
	CreatedAt time.Time `json:"created_at"`
}

// InstallRecord is written only after the package install succeeded.
type InstallRecord struct {
	Package     string    `json:"package,omitempty"`
	Extras      []string  `json:"extras,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// Options configures a Provisioner.
type Options struct {
	// ProjectDir is the checkout root; environments live directly inside it
	// and the editable install targets it.
	ProjectDir string
	// Python is the host interpreter used to create environments.
	Python  string
	Package string
	Extras  []string
	// DryRun skips every filesystem mutation.
	DryRun bool
}

// Provisioner creates, fills and removes environments.
type Provisioner struct {
	opts    Options
	invoker invoker.Invoker
	logger  *zap.Logger
	now     func() time.Time
}

// NewProvisioner validates opts and returns a Provisioner.
func NewProvisioner(inv invoker.Invoker, opts Options, logger *zap.Logger) (*Provisioner, error) {
	if inv == nil {
		return nil, fmt.Errorf("env: invoker is required")
	}
	if strings.TrimSpace(opts.ProjectDir) == "" {
		return nil, fmt.Errorf("env: project dir is required")
	}
	if strings.TrimSpace(opts.Python) == "" {
		opts.Python = "python3"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{opts: opts, invoker: inv, logger: logger, now: time.Now}, nil
}

// Path returns the deterministic location for the environment called name.
func (p *Provisioner) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("env: invalid environment name %q", name)
	}
	return filepath.Join(p.opts.ProjectDir, name), nil
}

// Open addresses an existing environment without creating it.
func (p *Provisioner) Open(name string) (*Environment, error) {
	root, err := p.Path(name)
	if err != nil {
		return nil, err
	}
	env := &Environment{Name: name, Root: root}
	if p.opts.DryRun {
		return env, nil
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrEnvironmentNotFound, root)
		}
		return nil, fmt.Errorf("env: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrEnvironmentNotFound, root)
	}
	return env, nil
}

// Create makes a fresh environment at Path(name). An environment previously
// created under the same name is reused as-is; any other content at that
// path is a conflict and is never overwritten.
func (p *Provisioner) Create(ctx context.Context, name string) (*Environment, error) {
	root, err := p.Path(name)
	if err != nil {
		return nil, err
	}
	env := &Environment{Name: name, Root: root}
	state, err := p.inspect(env)
	if err != nil {
		return nil, err
	}
	log := p.logger.With(zap.String("env", name), zap.String("path", root))
	switch state {
	case stateOurs:
		log.Info("environment already exists, reusing")
		return env, nil
	case stateForeign:
		return nil, fmt.Errorf("%w: %s holds other content, run clean_env to replace it", ErrEnvironmentExists, root)
	}

	log.Info("creating environment", zap.String("python", p.opts.Python))
	_, statErr := os.Stat(root)
	existed := statErr == nil
	cmd := invoker.Command{Tool: p.opts.Python, Args: []string{"-m", "venv", root}, Dir: p.opts.ProjectDir}
	if err := p.invoker.Run(ctx, cmd); err != nil {
		p.discardPartial(root, existed)
		return nil, fmt.Errorf("env: create %s: %w", name, err)
	}
	if p.opts.DryRun {
		return env, nil
	}
	marker := Marker{Name: name, Python: p.opts.Python, CreatedAt: p.now().UTC()}
	if err := writeJSON(filepath.Join(root, markerFile), marker); err != nil {
		p.discardPartial(root, existed)
		return nil, fmt.Errorf("env: mark %s: %w", name, err)
	}
	return env, nil
}

// discardPartial removes whatever an unfinished create left at root so the
// next create does not mistake it for foreign content. A directory that was
// already there (empty) is recreated empty.
func (p *Provisioner) discardPartial(root string, existed bool) {
	if p.opts.DryRun {
		return
	}
	if err := os.RemoveAll(root); err != nil {
		p.logger.Warn("could not remove partial environment", zap.String("path", root), zap.Error(err))
		return
	}
	if existed {
		_ = os.Mkdir(root, 0o755)
	}
}

// InstallCore upgrades the environment's installer and installs the project
// in editable mode with its extras. The install record is cleared first and
// rewritten only on success, so a failed run never looks installed.
func (p *Provisioner) InstallCore(ctx context.Context, env *Environment) error {
	if env == nil {
		return fmt.Errorf("env: environment is required")
	}
	if !p.opts.DryRun {
		if err := os.Remove(p.recordPath(env)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &InstallFailure{Env: env.Name, Step: "reset", Err: err}
		}
		if _, err := os.Stat(env.Root); err != nil {
			return &InstallFailure{Env: env.Name, Step: "locate", Err: fmt.Errorf("environment missing at %s", env.Root)}
		}
	}
	if meta := findProjectMetadata(p.opts.ProjectDir); meta == "" {
		return &InstallFailure{
			Env:  env.Name,
			Step: "metadata",
			Err:  fmt.Errorf("no pyproject.toml, setup.cfg or setup.py in %s", p.opts.ProjectDir),
		}
	}

	upgrade := invoker.Command{Tool: env.Python(), Args: []string{"-m", "pip", "install", "--upgrade", "pip"}, Dir: p.opts.ProjectDir}
	if err := p.invoker.Run(ctx, upgrade); err != nil {
		return &InstallFailure{Env: env.Name, Step: "upgrade-pip", Err: err}
	}
	install := invoker.Command{Tool: env.Python(), Args: []string{"-m", "pip", "install", "-e", EditableSpec(".", p.opts.Extras)}, Dir: p.opts.ProjectDir}
	if err := p.invoker.Run(ctx, install); err != nil {
		return &InstallFailure{Env: env.Name, Step: "editable-install", Err: err}
	}
	if p.opts.DryRun {
		return nil
	}
	record := InstallRecord{Package: p.opts.Package, Extras: append([]string(nil), p.opts.Extras...), InstalledAt: p.now().UTC()}
	if err := writeJSON(p.recordPath(env), record); err != nil {
		return &InstallFailure{Env: env.Name, Step: "record", Err: err}
	}
	p.logger.Info("package installed", zap.String("env", env.Name), zap.Strings("extras", p.opts.Extras))
	return nil
}

// InstallPackages installs extra tooling (build, twine, ...) into env.
func (p *Provisioner) InstallPackages(ctx context.Context, env *Environment, pkgs ...string) error {
	if env == nil {
		return fmt.Errorf("env: environment is required")
	}
	if len(pkgs) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install", "--upgrade"}, pkgs...)
	if err := p.invoker.Run(ctx, invoker.Command{Tool: env.Python(), Args: args, Dir: p.opts.ProjectDir}); err != nil {
		return &InstallFailure{Env: env.Name, Step: "packages", Err: err}
	}
	return nil
}

// Installed reports the install record of env, if any.
func (p *Provisioner) Installed(env *Environment) (InstallRecord, bool, error) {
	var record InstallRecord
	data, err := os.ReadFile(p.recordPath(env))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record, false, nil
		}
		return record, false, err
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, false, fmt.Errorf("env: decode install record: %w", err)
	}
	return record, true, nil
}

// Destroy removes the environment tree. A missing environment yields
// ErrEnvironmentNotFound.
func (p *Provisioner) Destroy(env *Environment) error {
	if env == nil {
		return fmt.Errorf("env: environment is required")
	}
	if _, err := os.Stat(env.Root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrEnvironmentNotFound, env.Root)
		}
		return fmt.Errorf("env: stat %s: %w", env.Root, err)
	}
	if p.opts.DryRun {
		p.logger.Info("dry run: would remove environment", zap.String("path", env.Root))
		return nil
	}
	if err := os.RemoveAll(env.Root); err != nil {
		return fmt.Errorf("env: remove %s: %w", env.Root, err)
	}
	p.logger.Info("environment removed", zap.String("env", env.Name), zap.String("path", env.Root))
	return nil
}

// EditableSpec renders a pip requirement such as ".[generate,check]".
func EditableSpec(path string, extras []string) string {
	if len(extras) == 0 {
		return path
	}
	return path + "[" + strings.Join(extras, ",") + "]"
}

type pathState int

const (
	stateAbsent pathState = iota
	stateOurs
	stateForeign
)

func (p *Provisioner) inspect(env *Environment) (pathState, error) {
	entries, err := os.ReadDir(env.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stateAbsent, nil
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// a regular file sits where the environment should be
			if info, statErr := os.Stat(env.Root); statErr == nil && !info.IsDir() {
				return stateForeign, nil
			}
		}
		return stateAbsent, fmt.Errorf("env: inspect %s: %w", env.Root, err)
	}
	if len(entries) == 0 {
		return stateAbsent, nil
	}
	data, err := os.ReadFile(filepath.Join(env.Root, markerFile))
	if err != nil {
		return stateForeign, nil
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return stateForeign, nil
	}
	if marker.Name != env.Name {
		return stateForeign, nil
	}
	return stateOurs, nil
}

func (p *Provisioner) recordPath(env *Environment) string {
	return filepath.Join(env.Root, installRecordFile)
}

func findProjectMetadata(dir string) string {
	for _, name := range []string{"pyproject.toml", "setup.cfg", "setup.py"} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func writeJSON(path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

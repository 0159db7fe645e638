// internal/config/config.go
//
// This package handles configuration and the .stubflow directory structure.
// Every checkout that uses stubflow gets a .stubflow/ folder in its root
// holding config.yaml, the run journal and the last run record.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each checkout.
	Dir = ".stubflow"

	// EnvPrefix marks environment variables that override config.yaml.
	EnvPrefix = "STUBFLOW_"

	configFileName = "config.yaml"
)

const configHeader = `# stubflow project configuration
# Every key can be overridden with a STUBFLOW_<KEY> environment variable,
# e.g. STUBFLOW_ENV_NAME=.venv or STUBFLOW_EXTRAS=generate,check.
`

// ProjectConfig models .stubflow/config.yaml.
type ProjectConfig struct {
	Version int `koanf:"version" yaml:"version"`

	// Python is the host interpreter used to create the environment.
	Python string `koanf:"python" yaml:"python"`
	// EnvName is the logical environment name; the environment lives at
	// <project>/<env_name>.
	EnvName       string   `koanf:"env_name" yaml:"env_name"`
	Package       string   `koanf:"package" yaml:"package"`
	Extras        []string `koanf:"extras" yaml:"extras"`
	BuildPackages []string `koanf:"build_packages" yaml:"build_packages"`
	// SystemCommand installs host prerequisites for setup_system.
	SystemCommand []string `koanf:"system_command" yaml:"system_command"`

	Changelog      string `koanf:"changelog" yaml:"changelog"`
	ReleaseVersion string `koanf:"release_version" yaml:"release_version,omitempty"`
	DistDir        string `koanf:"dist_dir" yaml:"dist_dir"`
	DistPattern    string `koanf:"dist_pattern" yaml:"dist_pattern"`
	Repository     string `koanf:"repository" yaml:"repository,omitempty"`

	HookConfig string `koanf:"hook_config" yaml:"hook_config"`
	LintTarget string `koanf:"lint_target" yaml:"lint_target"`

	// PhasesFile replaces the built-in phase graph when set.
	PhasesFile string `koanf:"phases_file" yaml:"phases_file,omitempty"`
}

// Config holds the runtime configuration for one checkout.
type Config struct {
	// ProjectDir is the checkout root every path is resolved against.
	ProjectDir string

	// StubflowDir is ProjectDir/.stubflow
	StubflowDir string

	Project ProjectConfig
}

// Default returns the built-in project settings.
func Default() ProjectConfig {
	return ProjectConfig{
		Version:       1,
		Python:        "python3",
		EnvName:       "venv",
		Package:       "freecad-stub-gen",
		Extras:        []string{"generate", "check"},
		BuildPackages: []string{"build", "twine"},
		SystemCommand: []string{"sudo", "apt-get", "install", "-y", "python3-venv", "python3-pip"},
		Changelog:     "CHANGELOG.md",
		DistDir:       "dist",
		DistPattern:   "*",
		HookConfig:    ".pre-commit-config.yaml",
		LintTarget:    "freecad_stub_gen",
	}
}

// Init creates the .stubflow directory structure and writes a default
// config.yaml when none exists yet.
//
// Structure created:
// .stubflow/
// ├── config.yaml
// ├── logs/    <- run journal
// └── state/   <- last run record
func Init(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, configFileName))
}

// Load reads .stubflow/config.yaml (or configPath when given) and applies
// STUBFLOW_* environment overrides on top.
//
// Precedence (highest first):
//  1. STUBFLOW_* environment variables
//  2. the YAML file
//  3. Default()
func Load(projectDir, configPath string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir:  abs,
		StubflowDir: filepath.Join(abs, Dir),
	}
	if configPath == "" {
		configPath = cfg.ProjectConfigPath()
	} else {
		configPath = resolvePath(abs, configPath)
	}

	k := koanf.New(".")
	defaults, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("config: encode defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg.Project); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Project.applyDefaults()
	cfg.Project.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// envValue maps STUBFLOW_ENV_NAME=x to env_name=x. List keys accept
// comma separated values; system_command splits on whitespace.
func envValue(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	switch name {
	case "extras", "build_packages":
		return name, strings.Split(value, ",")
	case "system_command":
		return name, strings.Fields(value)
	}
	return name, value
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StubflowDir, configFileName)
}

// LogPath returns the run journal file.
func (c *Config) LogPath() string {
	return filepath.Join(c.StubflowDir, "logs", "stubflow.log")
}

// RecordPath returns the file holding the last run record.
func (c *Config) RecordPath() string {
	return filepath.Join(c.StubflowDir, "state", "last-run.json")
}

// EnvPath returns where the environment named EnvName lives.
func (c *Config) EnvPath() string {
	return filepath.Join(c.ProjectDir, c.Project.EnvName)
}

// ChangelogPath returns the absolute changelog location.
func (c *Config) ChangelogPath() string {
	return resolvePath(c.ProjectDir, c.Project.Changelog)
}

// DistPath returns the absolute distribution output directory.
func (c *Config) DistPath() string {
	return resolvePath(c.ProjectDir, c.Project.DistDir)
}

// HookConfigPath returns the absolute pre-commit config location.
func (c *Config) HookConfigPath() string {
	return resolvePath(c.ProjectDir, c.Project.HookConfig)
}

// PhasesPath returns the custom phase graph file, or "" for the built-in one.
func (c *Config) PhasesPath() string {
	if c.Project.PhasesFile == "" {
		return ""
	}
	return resolvePath(c.ProjectDir, c.Project.PhasesFile)
}

// Save writes the project config back to its file.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StubflowDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", Dir, err)
	}
	return writeProjectConfig(c.ProjectConfigPath(), c.Project)
}

func (pc *ProjectConfig) applyDefaults() {
	def := Default()
	if pc.Version == 0 {
		pc.Version = def.Version
	}
	if strings.TrimSpace(pc.Python) == "" {
		pc.Python = def.Python
	}
	if strings.TrimSpace(pc.EnvName) == "" {
		pc.EnvName = def.EnvName
	}
	if strings.TrimSpace(pc.Changelog) == "" {
		pc.Changelog = def.Changelog
	}
	if strings.TrimSpace(pc.DistDir) == "" {
		pc.DistDir = def.DistDir
	}
	if strings.TrimSpace(pc.DistPattern) == "" {
		pc.DistPattern = def.DistPattern
	}
	if strings.TrimSpace(pc.HookConfig) == "" {
		pc.HookConfig = def.HookConfig
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Python = strings.TrimSpace(pc.Python)
	pc.EnvName = strings.TrimSpace(pc.EnvName)
	pc.Package = strings.TrimSpace(pc.Package)
	pc.Extras = cleanList(pc.Extras)
	pc.BuildPackages = cleanList(pc.BuildPackages)
	pc.SystemCommand = cleanList(pc.SystemCommand)
	pc.Changelog = strings.TrimSpace(pc.Changelog)
	pc.ReleaseVersion = strings.TrimSpace(pc.ReleaseVersion)
	pc.DistDir = strings.TrimSpace(pc.DistDir)
	pc.DistPattern = strings.TrimSpace(pc.DistPattern)
	pc.Repository = strings.TrimSpace(pc.Repository)
	pc.HookConfig = strings.TrimSpace(pc.HookConfig)
	pc.LintTarget = strings.TrimSpace(pc.LintTarget)
	pc.PhasesFile = strings.TrimSpace(pc.PhasesFile)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.EnvName == "." || pc.EnvName == ".." || strings.ContainsAny(pc.EnvName, `/\`) {
		return fmt.Errorf("env_name %q must be a plain directory name", pc.EnvName)
	}
	if pc.EnvName == Dir {
		return fmt.Errorf("env_name must not be %s", Dir)
	}
	for _, extra := range pc.Extras {
		if strings.ContainsAny(extra, "[], ") {
			return fmt.Errorf("extras entry %q is not a valid extra name", extra)
		}
	}
	return nil
}

// validate checks the project settings and the paths they resolve to.
// dist.clean removes DistPath wholesale, so it must name a directory
// strictly inside the checkout and away from .stubflow and the environment.
func (c *Config) validate() error {
	if err := c.Project.validate(); err != nil {
		return err
	}
	dist := c.DistPath()
	rel, err := filepath.Rel(c.ProjectDir, dist)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("dist_dir %q must be a directory inside the checkout", c.Project.DistDir)
	}
	for _, reserved := range []string{c.StubflowDir, c.EnvPath()} {
		if within(reserved, dist) || within(dist, reserved) {
			return fmt.Errorf("dist_dir %q overlaps %s", c.Project.DistDir, reserved)
		}
	}
	return nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return writeProjectConfig(path, Default())
}

func writeProjectConfig(path string, pc ProjectConfig) error {
	data, err := yamlv3.Marshal(pc)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	content := append([]byte(configHeader), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Package hooks drives the pre-commit hook set of the checkout. Every
// operation is a single pre-commit invocation against the whole tracked file
// tree, not just the files changed since the last commit.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
)

var (
	// ErrNotRepository is returned when the checkout is not a git work tree.
	ErrNotRepository = errors.New("hooks: project is not inside a git repository")
	// ErrNoHookConfig is returned when the hook configuration file is missing.
	ErrNoHookConfig = errors.New("hooks: hook configuration not found")
)

// Manager runs pre-commit from the provisioned environment.
type Manager struct {
	invoker    invoker.Invoker
	projectDir string
	configFile string
	logger     *zap.Logger
}

// NewManager builds a Manager for the checkout at projectDir using the hook
// configuration at configFile.
func NewManager(inv invoker.Invoker, projectDir, configFile string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{invoker: inv, projectDir: projectDir, configFile: configFile, logger: logger}
}

// Install registers the git hook scripts.
func (m *Manager) Install(ctx context.Context, e *env.Environment) error {
	return m.run(ctx, e, "install", "--config", m.configFile)
}

// Uninstall removes the git hook scripts.
func (m *Manager) Uninstall(ctx context.Context, e *env.Environment) error {
	return m.run(ctx, e, "uninstall")
}

// Run executes every hook against all tracked files. Findings surface as the
// hook tool's non-zero exit.
func (m *Manager) Run(ctx context.Context, e *env.Environment) error {
	return m.run(ctx, e, "run", "--all-files", "--config", m.configFile)
}

// Update bumps hook revisions in the configuration file.
func (m *Manager) Update(ctx context.Context, e *env.Environment) error {
	return m.run(ctx, e, "autoupdate", "--config", m.configFile)
}

func (m *Manager) run(ctx context.Context, e *env.Environment, args ...string) error {
	if e == nil {
		return fmt.Errorf("hooks: environment is required")
	}
	if err := m.preflight(); err != nil {
		return err
	}
	m.logger.Debug("running pre-commit", zap.Strings("args", args))
	cmd := invoker.Command{Tool: e.Bin("pre-commit"), Args: args, Dir: m.projectDir}
	if err := m.invoker.Run(ctx, cmd); err != nil {
		return fmt.Errorf("hooks: pre-commit %s: %w", args[0], err)
	}
	return nil
}

func (m *Manager) preflight() error {
	_, err := git.PlainOpenWithOptions(m.projectDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("%w: %s", ErrNotRepository, m.projectDir)
		}
		return fmt.Errorf("hooks: open repository: %w", err)
	}
	if _, err := os.Stat(m.configFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoHookConfig, m.configFile)
		}
		return fmt.Errorf("hooks: stat %s: %w", m.configFile, err)
	}
	return nil
}

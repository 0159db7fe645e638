package step

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/analysis"
	"github.com/kingrea/stubflow/internal/config"
	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/hooks"
	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/release"
)

// Context carries shared runtime dependencies into every step.
type Context struct {
	Ctx         context.Context
	Config      *config.Config
	Invoker     invoker.Invoker
	Provisioner *env.Provisioner
	Hooks       *hooks.Manager
	Analysis    *analysis.Runner
	Packager    *release.Packager
	Logger      *zap.Logger

	// Phase names the phase currently executing.
	Phase  string
	DryRun bool
}

// NewContext wires the components for one checkout.
func NewContext(cfg *config.Config, inv invoker.Invoker, dryRun bool, logger *zap.Logger) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("step: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := cfg.Project
	prov, err := env.NewProvisioner(inv, env.Options{
		ProjectDir: cfg.ProjectDir,
		Python:     pc.Python,
		Package:    pc.Package,
		Extras:     pc.Extras,
		DryRun:     dryRun,
	}, logger.Named("env"))
	if err != nil {
		return nil, err
	}
	packager, err := release.NewPackager(inv, release.Options{
		ProjectDir:  cfg.ProjectDir,
		Changelog:   cfg.ChangelogPath(),
		DistDir:     cfg.DistPath(),
		DistPattern: pc.DistPattern,
		Repository:  pc.Repository,
		DryRun:      dryRun,
	}, logger.Named("release"))
	if err != nil {
		return nil, err
	}
	return &Context{
		Ctx:         context.Background(),
		Config:      cfg,
		Invoker:     inv,
		Provisioner: prov,
		Hooks:       hooks.NewManager(inv, cfg.ProjectDir, cfg.HookConfigPath(), logger.Named("hooks")),
		Analysis:    analysis.NewRunner(inv, cfg.ProjectDir, logger.Named("analysis")),
		Packager:    packager,
		Logger:      logger,
		DryRun:      dryRun,
	}, nil
}

// WithContext returns a copy bound to ctx.
func (c *Context) WithContext(ctx context.Context) *Context {
	clone := *c
	clone.Ctx = ctx
	return &clone
}

// WithPhase records which phase is executing.
func (c *Context) WithPhase(name string) *Context {
	clone := *c
	clone.Phase = name
	clone.Logger = c.Logger.With(zap.String("phase", name))
	return &clone
}

// Environment opens the configured environment.
func (c *Context) Environment() (*env.Environment, error) {
	return c.Provisioner.Open(c.Config.Project.EnvName)
}

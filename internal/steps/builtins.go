// Package steps registers the built-in step operations that phase
// definitions refer to by ID.
package steps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/step"
)

// Operation IDs.
const (
	OpTool               = "tool"
	OpSystemInstall      = "system.install"
	OpEnvCreate          = "env.create"
	OpEnvInstallCore     = "env.install-core"
	OpEnvInstallPackages = "env.install-packages"
	OpEnvDestroy         = "env.destroy"
	OpHooksInstall       = "hooks.install"
	OpHooksUninstall     = "hooks.uninstall"
	OpHooksRun           = "hooks.run"
	OpHooksUpdate        = "hooks.update"
	OpCheckMypy          = "check.mypy"
	OpCheckPyright       = "check.pyright"
	OpCheckPylint        = "check.pylint"
	OpChangelogNormalize = "changelog.normalize"
	OpChangelogRelease   = "changelog.release"
	OpDistClean          = "dist.clean"
	OpDistBuild          = "dist.build"
	OpDistUpload         = "dist.upload"
)

// RegisterBuiltins installs every built-in operation into reg.
func RegisterBuiltins(reg *step.Registry) error {
	builtins := map[string]step.Factory{
		OpTool:               newTool,
		OpSystemInstall:      newSystemInstall,
		OpEnvCreate:          newEnvCreate,
		OpEnvInstallCore:     newEnvInstallCore,
		OpEnvInstallPackages: newEnvInstallPackages,
		OpEnvDestroy:         newEnvDestroy,
		OpHooksInstall:       hookStep(OpHooksInstall, "Install hooks", "register the pre-commit hooks with git", hookInstall),
		OpHooksUninstall:     hookStep(OpHooksUninstall, "Uninstall hooks", "remove the pre-commit hooks from git", hookUninstall),
		OpHooksRun:           hookStep(OpHooksRun, "Run hooks", "run every hook against all files", hookRun),
		OpHooksUpdate:        hookStep(OpHooksUpdate, "Update hooks", "bump hook revisions to their latest tags", hookUpdate),
		OpCheckMypy:          newCheckMypy,
		OpCheckPyright:       newCheckPyright,
		OpCheckPylint:        newCheckPylint,
		OpChangelogNormalize: newChangelogNormalize,
		OpChangelogRelease:   newChangelogRelease,
		OpDistClean:          newDistClean,
		OpDistBuild:          newDistBuild,
		OpDistUpload:         newDistUpload,
	}
	for id, factory := range builtins {
		if err := reg.Register(id, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in operations.
func NewRegistry() *step.Registry {
	reg := step.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		panic(err)
	}
	return reg
}

func newTool(cfg step.Config) (step.Step, error) {
	command := cfg.Strings("command", nil)
	if len(command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	dir := cfg.String("dir", "")
	info := step.Info{ID: OpTool, Name: cfg.String("name", command[0]), Description: "run " + command[0]}
	return step.NewFunc(info, func(ctx *step.Context) error {
		return runCommand(ctx, command, dir)
	}), nil
}

func newSystemInstall(cfg step.Config) (step.Step, error) {
	override := cfg.Strings("command", nil)
	info := step.Info{ID: OpSystemInstall, Name: "Install system packages", Description: "install host prerequisites"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		command := override
		if len(command) == 0 {
			command = ctx.Config.Project.SystemCommand
		}
		if len(command) == 0 {
			return fmt.Errorf("steps: no system command configured")
		}
		return runCommand(ctx, command, "")
	}), nil
}

func runCommand(ctx *step.Context, command []string, dir string) error {
	if dir == "" {
		dir = ctx.Config.ProjectDir
	}
	ctx.Logger.Debug("running tool step", zap.Strings("command", command))
	return ctx.Invoker.Run(ctx.Ctx, invoker.Command{Tool: command[0], Args: command[1:], Dir: dir})
}

func newEnvCreate(cfg step.Config) (step.Step, error) {
	name := cfg.String("name", "")
	info := step.Info{ID: OpEnvCreate, Name: "Create environment", Description: "create the isolated interpreter environment"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		_, err := ctx.Provisioner.Create(ctx.Ctx, envName(ctx, name))
		return err
	}), nil
}

func newEnvInstallCore(cfg step.Config) (step.Step, error) {
	name := cfg.String("env", "")
	info := step.Info{ID: OpEnvInstallCore, Name: "Install package", Description: "install the project in editable mode with its extras"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Provisioner.Open(envName(ctx, name))
		if err != nil {
			return err
		}
		return ctx.Provisioner.InstallCore(ctx.Ctx, e)
	}), nil
}

func newEnvInstallPackages(cfg step.Config) (step.Step, error) {
	name := cfg.String("env", "")
	packages := cfg.Strings("packages", nil)
	info := step.Info{ID: OpEnvInstallPackages, Name: "Install tooling", Description: "install extra packages into the environment"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		pkgs := packages
		if len(pkgs) == 0 {
			pkgs = ctx.Config.Project.BuildPackages
		}
		e, err := ctx.Provisioner.Open(envName(ctx, name))
		if err != nil {
			return err
		}
		return ctx.Provisioner.InstallPackages(ctx.Ctx, e, pkgs...)
	}), nil
}

func newEnvDestroy(cfg step.Config) (step.Step, error) {
	name := cfg.String("name", "")
	info := step.Info{
		ID:          OpEnvDestroy,
		Name:        "Remove environment",
		Description: "delete the environment directory",
		Tolerates:   []error{env.ErrEnvironmentNotFound},
	}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Provisioner.Open(envName(ctx, name))
		if err != nil {
			return err
		}
		return ctx.Provisioner.Destroy(e)
	}), nil
}

func envName(ctx *step.Context, override string) string {
	if override != "" {
		return override
	}
	return ctx.Config.Project.EnvName
}

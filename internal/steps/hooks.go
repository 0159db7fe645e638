package steps

import (
	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/step"
)

type hookAction func(ctx *step.Context, e *env.Environment) error

func hookInstall(ctx *step.Context, e *env.Environment) error { return ctx.Hooks.Install(ctx.Ctx, e) }
func hookUninstall(ctx *step.Context, e *env.Environment) error { return ctx.Hooks.Uninstall(ctx.Ctx, e) }
func hookRun(ctx *step.Context, e *env.Environment) error { return ctx.Hooks.Run(ctx.Ctx, e) }
func hookUpdate(ctx *step.Context, e *env.Environment) error { return ctx.Hooks.Update(ctx.Ctx, e) }

func hookStep(id, name, description string, action hookAction) step.Factory {
	return func(cfg step.Config) (step.Step, error) {
		override := cfg.String("env", "")
		info := step.Info{ID: id, Name: name, Description: description}
		return step.NewFunc(info, func(ctx *step.Context) error {
			e, err := ctx.Provisioner.Open(envName(ctx, override))
			if err != nil {
				return err
			}
			return action(ctx, e)
		}), nil
	}
}

package steps

import (
	"github.com/kingrea/stubflow/internal/step"
)

func newCheckMypy(cfg step.Config) (step.Step, error) {
	args := cfg.Strings("args", nil)
	info := step.Info{ID: OpCheckMypy, Name: "mypy", Description: "type check with mypy"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Environment()
		if err != nil {
			return err
		}
		return ctx.Analysis.Mypy(ctx.Ctx, e, args...)
	}), nil
}

func newCheckPyright(cfg step.Config) (step.Step, error) {
	args := cfg.Strings("args", nil)
	info := step.Info{ID: OpCheckPyright, Name: "pyright", Description: "type check with pyright"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Environment()
		if err != nil {
			return err
		}
		return ctx.Analysis.Pyright(ctx.Ctx, e, args...)
	}), nil
}

func newCheckPylint(cfg step.Config) (step.Step, error) {
	target := cfg.String("target", "")
	info := step.Info{ID: OpCheckPylint, Name: "pylint", Description: "lint with pylint"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Environment()
		if err != nil {
			return err
		}
		t := target
		if t == "" {
			t = ctx.Config.Project.LintTarget
		}
		return ctx.Analysis.Pylint(ctx.Ctx, e, t)
	}), nil
}

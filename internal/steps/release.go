package steps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/step"
)

func newChangelogNormalize(step.Config) (step.Step, error) {
	info := step.Info{ID: OpChangelogNormalize, Name: "Normalize changelog", Description: "replace escaped brackets in the changelog"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		changed, err := ctx.Packager.Normalize()
		if err != nil {
			return err
		}
		ctx.Logger.Info("changelog normalized", zap.Bool("changed", changed))
		return nil
	}), nil
}

func newChangelogRelease(cfg step.Config) (step.Step, error) {
	pinned := cfg.String("version", "")
	info := step.Info{ID: OpChangelogRelease, Name: "Release changelog", Description: "promote Unreleased to a dated version"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		spec := pinned
		if spec == "" {
			spec = ctx.Config.Project.ReleaseVersion
		}
		if spec == "" {
			return fmt.Errorf("steps: release version is required (--release-version or release_version)")
		}
		version, err := ctx.Packager.Release(spec)
		if err != nil {
			return err
		}
		ctx.Logger.Info("changelog released", zap.String("version", version))
		return nil
	}), nil
}

func newDistClean(step.Config) (step.Step, error) {
	info := step.Info{ID: OpDistClean, Name: "Clean dist", Description: "remove previous distribution artifacts"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		return ctx.Packager.Clean()
	}), nil
}

func newDistBuild(step.Config) (step.Step, error) {
	info := step.Info{ID: OpDistBuild, Name: "Build", Description: "build sdist and wheel"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Environment()
		if err != nil {
			return err
		}
		return ctx.Packager.Build(ctx.Ctx, e)
	}), nil
}

func newDistUpload(step.Config) (step.Step, error) {
	info := step.Info{ID: OpDistUpload, Name: "Upload", Description: "publish artifacts to the package index"}
	return step.NewFunc(info, func(ctx *step.Context) error {
		e, err := ctx.Environment()
		if err != nil {
			return err
		}
		return ctx.Packager.Upload(ctx.Ctx, e)
	}), nil
}

package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/config"
	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/step"
)

func newTestContext(t *testing.T, rec *invoker.Recorder) *step.Context {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\n"), 0o644))
	cfg := &config.Config{ProjectDir: dir, StubflowDir: filepath.Join(dir, config.Dir), Project: config.Default()}
	rec.On("-m venv", func(cmd invoker.Command) error {
		return os.MkdirAll(filepath.Join(cmd.Args[len(cmd.Args)-1], "bin"), 0o755)
	})
	sctx, err := step.NewContext(cfg, rec, false, zap.NewNop())
	require.NoError(t, err)
	return sctx.WithContext(context.Background())
}

func resolve(t *testing.T, reg *step.Registry, op string, cfg step.Config) step.Step {
	t.Helper()
	s, err := reg.Resolve(op, cfg)
	require.NoError(t, err)
	return s
}

func TestRegistryHasEveryOperation(t *testing.T) {
	reg := NewRegistry()
	for _, op := range []string{
		OpTool, OpSystemInstall, OpEnvCreate, OpEnvInstallCore, OpEnvInstallPackages, OpEnvDestroy,
		OpHooksInstall, OpHooksUninstall, OpHooksRun, OpHooksUpdate,
		OpCheckMypy, OpCheckPyright, OpCheckPylint,
		OpChangelogNormalize, OpChangelogRelease,
		OpDistClean, OpDistBuild, OpDistUpload,
	} {
		assert.True(t, reg.Has(op), op)
	}
	assert.Error(t, RegisterBuiltins(reg))
}

func TestToolRequiresCommand(t *testing.T) {
	_, err := NewRegistry().Resolve(OpTool, nil)
	assert.Error(t, err)
}

func TestToolAndSystemInstall(t *testing.T) {
	rec := invoker.NewRecorder()
	sctx := newTestContext(t, rec)
	reg := NewRegistry()

	require.NoError(t, resolve(t, reg, OpTool, step.Config{"command": []any{"echo", "hi there"}}).Run(sctx))
	require.NoError(t, resolve(t, reg, OpSystemInstall, nil).Run(sctx))

	assert.Equal(t, []string{
		`echo "hi there"`,
		"sudo apt-get install -y python3-venv python3-pip",
	}, rec.Lines())
	assert.Equal(t, sctx.Config.ProjectDir, rec.Calls()[0].Dir)
}

func TestEnvironmentLifecycle(t *testing.T) {
	rec := invoker.NewRecorder()
	sctx := newTestContext(t, rec)
	reg := NewRegistry()

	require.NoError(t, resolve(t, reg, OpEnvCreate, nil).Run(sctx))
	require.NoError(t, resolve(t, reg, OpEnvInstallCore, nil).Run(sctx))
	require.NoError(t, resolve(t, reg, OpEnvInstallPackages, nil).Run(sctx))

	e, err := sctx.Environment()
	require.NoError(t, err)
	_, installed, err := sctx.Provisioner.Installed(e)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Contains(t, rec.Lines()[3], "-m pip install --upgrade build twine")

	destroy := resolve(t, reg, OpEnvDestroy, nil)
	require.NoError(t, destroy.Run(sctx))
	assert.NoDirExists(t, sctx.Config.EnvPath())

	err = destroy.Run(sctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, env.ErrEnvironmentNotFound))
	assert.True(t, destroy.Info().Tolerated(err))
}

func TestChecksUseConfiguredTarget(t *testing.T) {
	rec := invoker.NewRecorder()
	sctx := newTestContext(t, rec)
	reg := NewRegistry()
	require.NoError(t, resolve(t, reg, OpEnvCreate, nil).Run(sctx))
	rec.Reset()

	require.NoError(t, resolve(t, reg, OpCheckMypy, nil).Run(sctx))
	require.NoError(t, resolve(t, reg, OpCheckPyright, nil).Run(sctx))
	require.NoError(t, resolve(t, reg, OpCheckPylint, nil).Run(sctx))
	require.NoError(t, resolve(t, reg, OpCheckPylint, step.Config{"target": "other"}).Run(sctx))

	calls := rec.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"-m", "pylint", "freecad_stub_gen"}, calls[2].Args)
	assert.Equal(t, []string{"-m", "pylint", "other"}, calls[3].Args)
}

func TestChecksNeedEnvironment(t *testing.T) {
	rec := invoker.NewRecorder()
	sctx := newTestContext(t, rec)

	err := resolve(t, NewRegistry(), OpCheckMypy, nil).Run(sctx)
	assert.True(t, errors.Is(err, env.ErrEnvironmentNotFound))
	assert.Empty(t, rec.Calls())
}

func TestChangelogReleaseNeedsVersion(t *testing.T) {
	sctx := newTestContext(t, invoker.NewRecorder())
	path := sctx.Config.ChangelogPath()
	require.NoError(t, os.WriteFile(path, []byte("### \\[Unreleased\\]\n\n- entry\n"), 0o644))
	reg := NewRegistry()

	require.NoError(t, resolve(t, reg, OpChangelogNormalize, nil).Run(sctx))
	assert.Error(t, resolve(t, reg, OpChangelogRelease, nil).Run(sctx))

	sctx.Config.Project.ReleaseVersion = "0.3.0"
	require.NoError(t, resolve(t, reg, OpChangelogRelease, nil).Run(sctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### [0.3.0] - ")
	assert.Contains(t, string(data), "- entry")
}

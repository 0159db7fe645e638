package env

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/invoker"
)

// fakeVenv makes the recorder behave like `python -m venv <path>`.
func fakeVenv(rec *invoker.Recorder) *invoker.Recorder {
	return rec.On("-m venv", func(cmd invoker.Command) error {
		root := cmd.Args[len(cmd.Args)-1]
		bin := filepath.Join(root, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(bin, "python"), []byte("#!/bin/sh\n"), 0o755)
	})
}

func newTestProvisioner(t *testing.T, rec *invoker.Recorder, withMetadata bool) (*Provisioner, string) {
	t.Helper()
	projectDir := t.TempDir()
	if withMetadata {
		require.NoError(t, os.WriteFile(filepath.Join(projectDir, "pyproject.toml"), []byte("[project]\nname = \"freecad-stub-gen\"\n"), 0o644))
	}
	p, err := NewProvisioner(rec, Options{
		ProjectDir: projectDir,
		Python:     "python3",
		Package:    "freecad-stub-gen",
		Extras:     []string{"generate", "check"},
	}, zap.NewNop())
	require.NoError(t, err)
	return p, projectDir
}

func TestCreateRunsVenvAtDeterministicPath(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, projectDir := newTestProvisioner(t, rec, true)

	env, err := p.Create(context.Background(), "venv")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "venv"), env.Root)
	assert.Equal(t, []string{"python3 -m venv " + env.Root}, rec.Lines())
	assert.FileExists(t, filepath.Join(env.Root, markerFile))
}

func TestCreateReusesOwnEnvironment(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, _ := newTestProvisioner(t, rec, true)
	_, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	rec.Reset()

	env, err := p.Create(context.Background(), "venv")

	require.NoError(t, err)
	assert.Empty(t, rec.Calls(), "reusing must not invoke venv again")
	assert.Equal(t, "venv", env.Name)
}

func TestCreateRefusesForeignContent(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, projectDir := newTestProvisioner(t, rec, true)
	root := filepath.Join(projectDir, "venv")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("mine"), 0o644))

	_, err := p.Create(context.Background(), "venv")

	assert.True(t, errors.Is(err, ErrEnvironmentExists))
	assert.Empty(t, rec.Calls())
	assert.FileExists(t, filepath.Join(root, "notes.txt"))
}

func TestCreateRefusesMarkerForOtherName(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, projectDir := newTestProvisioner(t, rec, true)
	root := filepath.Join(projectDir, "venv")
	require.NoError(t, writeJSON(filepath.Join(root, markerFile), Marker{Name: "other"}))

	_, err := p.Create(context.Background(), "venv")

	assert.True(t, errors.Is(err, ErrEnvironmentExists))
}

func TestCreateTreatsEmptyDirectoryAsAbsent(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, projectDir := newTestProvisioner(t, rec, true)
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "venv"), 0o755))

	_, err := p.Create(context.Background(), "venv")

	require.NoError(t, err)
	assert.Len(t, rec.Calls(), 1)
}

func TestCreateRejectsNestedNames(t *testing.T) {
	p, _ := newTestProvisioner(t, invoker.NewRecorder(), true)

	for _, name := range []string{"", ".", "..", "a/b"} {
		_, err := p.Create(context.Background(), name)
		assert.Error(t, err, name)
	}
}

func TestCreatePropagatesToolFailure(t *testing.T) {
	rec := invoker.NewRecorder().FailOn("-m venv", 1)
	p, projectDir := newTestProvisioner(t, rec, true)

	_, err := p.Create(context.Background(), "venv")

	assert.True(t, errors.Is(err, invoker.ErrToolFailure))
	assert.NoFileExists(t, filepath.Join(projectDir, "venv", markerFile))
}

func TestFailedCreateLeavesNoPartialEnvironment(t *testing.T) {
	rec := invoker.NewRecorder().On("-m venv", func(cmd invoker.Command) error {
		root := cmd.Args[len(cmd.Args)-1]
		if err := os.MkdirAll(filepath.Join(root, "bin"), 0o755); err != nil {
			return err
		}
		return &invoker.ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: 1, Err: errors.New("ensurepip failed")}
	})
	p, projectDir := newTestProvisioner(t, rec, true)

	_, err := p.Create(context.Background(), "venv")
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(projectDir, "venv"))

	fakeVenv(rec)
	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(env.Root, markerFile))
}

func TestFailedCreateKeepsPreexistingEmptyDirectory(t *testing.T) {
	rec := invoker.NewRecorder().On("-m venv", func(cmd invoker.Command) error {
		root := cmd.Args[len(cmd.Args)-1]
		if err := os.WriteFile(filepath.Join(root, "pyvenv.cfg"), []byte("home = /usr\n"), 0o644); err != nil {
			return err
		}
		return &invoker.ToolFailure{Tool: cmd.Tool, Args: cmd.Args, ExitCode: 1, Err: errors.New("interrupted")}
	})
	p, projectDir := newTestProvisioner(t, rec, true)
	root := filepath.Join(projectDir, "venv")
	require.NoError(t, os.Mkdir(root, 0o755))

	_, err := p.Create(context.Background(), "venv")
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDestroyThenCreateYieldsFreshEnvironment(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, _ := newTestProvisioner(t, rec, true)
	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	require.NoError(t, p.InstallCore(context.Background(), env))
	require.NoError(t, os.WriteFile(filepath.Join(env.Root, "leftover"), []byte("x"), 0o644))

	require.NoError(t, p.Destroy(env))
	assert.NoDirExists(t, env.Root)
	recreated, err := p.Create(context.Background(), "venv")

	require.NoError(t, err)
	assert.Equal(t, env.Root, recreated.Root)
	assert.NoFileExists(t, filepath.Join(recreated.Root, "leftover"))
	_, installed, err := p.Installed(recreated)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestDestroyMissingEnvironment(t *testing.T) {
	p, projectDir := newTestProvisioner(t, invoker.NewRecorder(), true)

	err := p.Destroy(&Environment{Name: "venv", Root: filepath.Join(projectDir, "venv")})

	assert.True(t, errors.Is(err, ErrEnvironmentNotFound))
}

func TestOpenMissingEnvironment(t *testing.T) {
	p, _ := newTestProvisioner(t, invoker.NewRecorder(), true)

	_, err := p.Open("venv")

	assert.True(t, errors.Is(err, ErrEnvironmentNotFound))
}

func TestInstallCoreUpgradesPipThenInstallsEditable(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, projectDir := newTestProvisioner(t, rec, true)
	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	rec.Reset()

	require.NoError(t, p.InstallCore(context.Background(), env))

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"-m", "pip", "install", "--upgrade", "pip"}, calls[0].Args)
	assert.Equal(t, []string{"-m", "pip", "install", "-e", ".[generate,check]"}, calls[1].Args)
	assert.Equal(t, env.Python(), calls[1].Tool)
	assert.Equal(t, projectDir, calls[1].Dir)
	record, installed, err := p.Installed(env)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, []string{"generate", "check"}, record.Extras)
}

func TestInstallCoreWithoutMetadataFails(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, _ := newTestProvisioner(t, rec, false)
	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	rec.Reset()

	err = p.InstallCore(context.Background(), env)

	assert.True(t, errors.Is(err, ErrInstallFailure))
	var failure *InstallFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "metadata", failure.Step)
	assert.Empty(t, rec.Calls(), "no install command may run")
	_, installed, err := p.Installed(env)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestInstallCoreFailureClearsPreviousRecord(t *testing.T) {
	rec := fakeVenv(invoker.NewRecorder())
	p, _ := newTestProvisioner(t, rec, true)
	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	require.NoError(t, p.InstallCore(context.Background(), env))
	rec.FailOn("install -e", 1)

	err = p.InstallCore(context.Background(), env)

	var failure *InstallFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "editable-install", failure.Step)
	assert.True(t, errors.Is(err, invoker.ErrToolFailure))
	assert.Equal(t, 1, invoker.ExitCode(err))
	_, installed, err := p.Installed(env)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestInstallPackages(t *testing.T) {
	rec := invoker.NewRecorder()
	p, projectDir := newTestProvisioner(t, rec, true)
	env := &Environment{Name: "venv", Root: filepath.Join(projectDir, "venv")}

	require.NoError(t, p.InstallPackages(context.Background(), env, "build", "twine"))
	require.NoError(t, p.InstallPackages(context.Background(), env))

	require.Len(t, rec.Calls(), 1)
	assert.Equal(t, []string{"-m", "pip", "install", "--upgrade", "build", "twine"}, rec.Calls()[0].Args)
}

func TestDryRunTouchesNothing(t *testing.T) {
	rec := invoker.NewRecorder()
	projectDir := t.TempDir()
	p, err := NewProvisioner(rec, Options{ProjectDir: projectDir, DryRun: true}, nil)
	require.NoError(t, err)

	env, err := p.Create(context.Background(), "venv")
	require.NoError(t, err)
	opened, err := p.Open("venv")
	require.NoError(t, err)

	assert.Equal(t, env.Root, opened.Root)
	assert.NoDirExists(t, env.Root)
}

func TestEditableSpec(t *testing.T) {
	assert.Equal(t, ".", EditableSpec(".", nil))
	assert.Equal(t, ".[check]", EditableSpec(".", []string{"check"}))
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/orchestrator"
	"github.com/kingrea/stubflow/internal/phase"
	"github.com/kingrea/stubflow/internal/tui"
)

type harness struct {
	dir    string
	clock  time.Time
	rec    *invoker.Recorder
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:   t.TempDir(),
		clock: time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC),
		rec:   invoker.NewRecorder(),
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "pyproject.toml"), []byte("[project]\n"), 0o644))
	h.rec.On("-m venv", func(cmd invoker.Command) error {
		return os.MkdirAll(filepath.Join(cmd.Args[len(cmd.Args)-1], "bin"), 0o755)
	})
	return h
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	c := newCLI(&h.stdout, &h.stderr)
	c.logger = zap.NewNop()
	c.newInvoker = func(*zap.Logger, io.Writer, io.Writer) invoker.Invoker { return h.rec }
	c.pick = func([]phase.Phase) (string, error) { return "setup_env", nil }
	c.now = func() time.Time { return h.clock }
	return c.execute(context.Background(), append([]string{"--project", h.dir}, args...))
}

func TestUnknownPhaseExitsTwo(t *testing.T) {
	h := newHarness(t)

	code := h.run("deploy")

	assert.Equal(t, orchestrator.ExitUnknownPhase, code)
	assert.Contains(t, h.stderr.String(), `unknown phase "deploy"`)
	assert.Empty(t, h.rec.Calls())
}

func TestPositionalPhaseDispatches(t *testing.T) {
	h := newHarness(t)

	code := h.run("install_in_env")

	require.Equal(t, 0, code, h.stderr.String())
	assert.Len(t, h.rec.Calls(), 3)
	assert.Contains(t, h.stdout.String(), "install_in_env succeeded")
	assert.FileExists(t, filepath.Join(h.dir, ".stubflow", "state", "last-run.json"))
}

func TestRunSubcommandPropagatesToolExitCode(t *testing.T) {
	h := newHarness(t)
	h.rec.FailOn("-m pip install --upgrade pip", 9)

	code := h.run("run", "install_in_env")

	assert.Equal(t, 9, code)
	assert.Contains(t, h.stdout.String(), "install_in_env failed")
}

func TestNoDepsSkipsPrerequisites(t *testing.T) {
	h := newHarness(t)

	code := h.run("--no-deps", "install_in_env")

	assert.Equal(t, orchestrator.ExitFailure, code)
	assert.Empty(t, h.rec.Calls())
}

func TestDryRunPrintsCommands(t *testing.T) {
	h := newHarness(t)

	code := h.run("--dry-run", "setup_env")

	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "+ (cd "+h.dir+") python3 -m venv "+filepath.Join(h.dir, "venv"))
	assert.Empty(t, h.rec.Calls())
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))
}

func TestPlanAndList(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("plan", "build_and_upload"))
	assert.Equal(t, " 1. setup_env\n 2. install_in_env\n 3. prepare_build\n 4. build_and_upload\n", h.stdout.String())

	require.Equal(t, 0, h.run("list"))
	assert.Contains(t, h.stdout.String(), "pre_commit_auto_update")
	assert.Contains(t, h.stdout.String(), "check_by_pyright")

	assert.Equal(t, orchestrator.ExitUnknownPhase, h.run("plan", "nope"))
}

func TestPickDispatchesChoice(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("pick"), h.stderr.String())
	assert.Equal(t, []string{"python3 -m venv " + filepath.Join(h.dir, "venv")}, h.rec.Lines())
}

func TestPickCancelled(t *testing.T) {
	h := newHarness(t)
	c := newCLI(&h.stdout, &h.stderr)
	c.logger = zap.NewNop()
	c.pick = func([]phase.Phase) (string, error) { return "", tui.ErrCancelled }

	assert.Equal(t, 0, c.execute(context.Background(), []string{"--project", h.dir, "pick"}))
}

func TestInitWritesConfigAndPhases(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("init", "--phases"), h.stderr.String())
	assert.FileExists(t, filepath.Join(h.dir, ".stubflow", "config.yaml"))
	assert.FileExists(t, filepath.Join(h.dir, ".stubflow", "phases.yaml"))

	require.Equal(t, 0, h.run("plan", "install_pre_commit"))
	assert.Contains(t, h.stdout.String(), "install_pre_commit")
}

func TestCyclicPhasesFileFailsAtStartup(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.dir, ".stubflow"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, ".stubflow", "phases.yaml"), []byte(`phases:
  - {name: a, requires: [b], steps: [{op: env.create}]}
  - {name: b, requires: [a], steps: [{op: env.create}]}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, ".stubflow", "config.yaml"), []byte("phases_file: .stubflow/phases.yaml\n"), 0o644))

	code := h.run("a")

	assert.Equal(t, orchestrator.ExitFailure, code)
	assert.Contains(t, h.stderr.String(), "cycle")
	assert.Empty(t, h.rec.Calls())
}

func TestReleaseVersionFlag(t *testing.T) {
	h := newHarness(t)
	changelog := filepath.Join(h.dir, "CHANGELOG.md")
	require.NoError(t, os.WriteFile(changelog, []byte("### \\[Unreleased\\]\n\n- entry\n"), 0o644))

	require.Equal(t, 0, h.run("--release-version", "1.0.0", "release_changelog"), h.stderr.String())

	data, err := os.ReadFile(changelog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### [Unreleased]\n\n### [1.0.0] - ")
}

func TestHistory(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("history"))
	assert.Contains(t, h.stdout.String(), "no runs recorded yet")
	assert.Contains(t, h.stdout.String(), "environment venv: not created")

	require.Equal(t, 0, h.run("setup_env"))
	require.Equal(t, 0, h.run("history"))
	out := h.stdout.String()
	assert.Contains(t, out, "setup_env succeeded")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, h.clock.Local().Format("2006-01-02 15:04:05"))
	assert.Contains(t, out, "environment venv: created, package not installed")

	require.Equal(t, 0, h.run("install_in_env"))
	require.Equal(t, 0, h.run("history", "--lines", "1"))
	out = h.stdout.String()
	assert.Contains(t, out, "environment venv: freecad-stub-gen[generate,check] installed")
	assert.Contains(t, out, "earlier journal lines")
}

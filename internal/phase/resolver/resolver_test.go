package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/stubflow/internal/phase"
)

func TestPlanDefaultGraph(t *testing.T) {
	r, err := New(phase.Default())
	require.NoError(t, err)

	cases := map[string][]string{
		"setup_env":          {"setup_env"},
		"install_in_env":     {"setup_env", "install_in_env"},
		"install_pre_commit": {"setup_env", "install_in_env", "install_pre_commit"},
		"build_and_upload":   {"setup_env", "install_in_env", "prepare_build", "build_and_upload"},
		"check_by_mypy":      {"check_by_mypy"},
		"clean_env":          {"clean_env"},
	}
	for target, want := range cases {
		got, err := r.Plan(target, true)
		require.NoError(t, err, target)
		assert.Equal(t, want, got, target)
	}

	only, err := r.Plan("build_and_upload", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"build_and_upload"}, only)
}

func TestPlanVisitsSharedPrerequisiteOnce(t *testing.T) {
	def, err := phase.Parse([]byte(`phases:
  - {name: base, steps: [{op: x}]}
  - {name: left, requires: [base], steps: [{op: x}]}
  - {name: right, requires: [base], steps: [{op: x}]}
  - {name: top, requires: [left, right], steps: [{op: x}]}
`))
	require.NoError(t, err)
	r, err := New(def)
	require.NoError(t, err)

	plan, err := r.Plan("top", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "left", "right", "top"}, plan)
}

func TestPlanUnknownPhase(t *testing.T) {
	r, err := New(phase.Default())
	require.NoError(t, err)

	_, err = r.Plan("nope", true)
	assert.True(t, errors.Is(err, phase.ErrUnknownPhase))
}

func TestNewRejectsCycle(t *testing.T) {
	def := phase.Definition{Phases: []phase.Phase{
		{Name: "a", Requires: []string{"b"}, Steps: []phase.StepRef{{Op: "x"}}},
		{Name: "b", Requires: []string{"a"}, Steps: []phase.StepRef{{Op: "x"}}},
	}}
	_, err := New(def)
	assert.True(t, errors.Is(err, phase.ErrCycle))
}

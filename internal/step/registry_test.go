package step

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errGone = errors.New("gone")

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("noop", func(cfg Config) (Step, error) {
		return NewFunc(Info{ID: "noop", Name: cfg.String("name", "No-op")}, func(*Context) error { return nil }), nil
	})

	s, err := reg.Resolve("noop", Config{"name": "Custom"})
	require.NoError(t, err)
	assert.Equal(t, "Custom", s.Info().Name)
	assert.True(t, reg.Has("noop"))
	assert.Equal(t, []string{"noop"}, reg.IDs())

	_, err = reg.Resolve("missing", nil)
	assert.Error(t, err)
	assert.Error(t, reg.Register("noop", func(Config) (Step, error) { return nil, nil }))
	assert.Error(t, reg.Register("", nil))
}

func TestRegistryRejectsInvalidInfo(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("bad", func(Config) (Step, error) {
		return NewFunc(Info{ID: "bad"}, nil), nil
	})

	_, err := reg.Resolve("bad", nil)
	assert.Error(t, err)
}

func TestConfigStrings(t *testing.T) {
	cfg := Config{
		"yaml":   []any{"build", " twine "},
		"csv":    "a, b,,c",
		"typed":  []string{"x"},
		"scalar": 3,
	}
	assert.Equal(t, []string{"build", "twine"}, cfg.Strings("yaml", nil))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Strings("csv", nil))
	assert.Equal(t, []string{"x"}, cfg.Strings("typed", nil))
	assert.Equal(t, []string{"3"}, cfg.Strings("scalar", nil))
	assert.Equal(t, []string{"d"}, cfg.Strings("absent", []string{"d"}))
	assert.Equal(t, "fallback", cfg.String("absent", "fallback"))
}

func TestInfoTolerated(t *testing.T) {
	info := Info{ID: "x", Name: "X", Tolerates: []error{errGone}}
	assert.True(t, info.Tolerated(errGone))
	assert.True(t, info.Tolerated(errors.Join(errors.New("wrap"), errGone)))
	assert.False(t, info.Tolerated(errors.New("other")))
	assert.False(t, info.Tolerated(nil))
}

func TestConfigCloneIsIndependent(t *testing.T) {
	original := Config{"target": "pkg"}
	clone := original.Clone()
	clone["target"] = "other"

	assert.Equal(t, "pkg", original.String("target", ""))
	assert.Nil(t, Config(nil).Clone())
}

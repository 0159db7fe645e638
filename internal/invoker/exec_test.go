//go:build !windows

package invoker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecStreamsOutput(t *testing.T) {
	var stdout bytes.Buffer
	inv := NewExec(zap.NewNop(), WithOutput(&stdout, &stdout))

	err := inv.Run(context.Background(), Command{Tool: "sh", Args: []string{"-c", "echo hello"}})

	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout.String())
}

func TestExecRunsInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	inv := NewExec(zap.NewNop(), WithOutput(&stdout, &stdout))

	require.NoError(t, inv.Run(context.Background(), Command{Tool: "sh", Args: []string{"-c", "touch marker && ls"}, Dir: dir}))
	assert.Contains(t, stdout.String(), "marker")
}

func TestExecReportsExitCode(t *testing.T) {
	inv := NewExec(zap.NewNop(), WithOutput(&bytes.Buffer{}, &bytes.Buffer{}))

	err := inv.Run(context.Background(), Command{Tool: "sh", Args: []string{"-c", "exit 3"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolFailure))
	var failure *ToolFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "sh", failure.Tool)
	assert.Equal(t, 3, failure.ExitCode)
	assert.Equal(t, 3, ExitCode(err))
}

func TestExecMissingToolIsFailure(t *testing.T) {
	inv := NewExec(zap.NewNop())

	err := inv.Run(context.Background(), Command{Tool: "stubflow-definitely-missing-tool"})

	var failure *ToolFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, -1, failure.ExitCode)
	assert.Equal(t, 1, ExitCode(err))
}

func TestExecCancellationAborts(t *testing.T) {
	inv := NewExec(zap.NewNop(), WithOutput(&bytes.Buffer{}, &bytes.Buffer{}))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := inv.Run(ctx, Command{Tool: "sh", Args: []string{"-c", "sleep 10"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestExecSignalledToolIsAborted(t *testing.T) {
	inv := NewExec(zap.NewNop(), WithOutput(&bytes.Buffer{}, &bytes.Buffer{}))

	err := inv.Run(context.Background(), Command{Tool: "sh", Args: []string{"-c", "kill -TERM $$"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.True(t, errors.Is(err, ErrToolFailure))
}

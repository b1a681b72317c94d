package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerNotFoundError(t *testing.T) {
	err := &WorkerNotFoundError{SearchedPaths: []string{"$PATH", "/usr/bin/deobfuscate-worker"}}

	assert.Contains(t, err.Error(), "$PATH")
	assert.True(t, err.IsDeobfuscatorError())
}

func TestSpawnError_Unwrap(t *testing.T) {
	cause := stderrors.New("fork failed")
	err := &SpawnError{Err: cause}

	assert.Contains(t, err.Error(), "fork failed")
	require.ErrorIs(t, err, cause)
	assert.True(t, err.IsDeobfuscatorError())
}

func TestProcessError(t *testing.T) {
	err := &ProcessError{ExitCode: 137, Stderr: "killed"}
	assert.Contains(t, err.Error(), "exit 137")
	assert.Contains(t, err.Error(), "killed")

	cause := stderrors.New("signal: killed")
	wrapped := &ProcessError{ExitCode: 137, Err: cause}
	require.ErrorIs(t, wrapped, cause)
}

func TestSentinelErrors_Wrap(t *testing.T) {
	err := fmt.Errorf("transform: %w", ErrTransactionTimeout)
	require.ErrorIs(t, err, ErrTransactionTimeout)

	err = fmt.Errorf("transform: %w", ErrWorkerClosed)
	require.ErrorIs(t, err, ErrWorkerClosed)
	require.NotErrorIs(t, err, ErrIncompleteResponse)
}

package subprocess

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/deobfuscator-go/internal/errors"
)

// writeWorkerScript writes a shell script acting as a fake worker and
// returns its path. The script receives the mapping path as $1 and ignores it.
func writeWorkerScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Fake workers are shell scripts; requires Unix")
	}

	path := filepath.Join(t.TempDir(), "worker.sh")
	script := "#!/bin/sh\n" + body + "\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func spawnScript(t *testing.T, body string, cfg Config) *Worker {
	t.Helper()

	cfg.Path = writeWorkerScript(t, body)
	cfg.Args = []string{"unused.mapping"}

	if cfg.MinTimeout == 0 {
		cfg.MinTimeout = 5 * time.Second
	}

	if cfg.PerLineTimeout == 0 {
		cfg.PerLineTimeout = 2 * time.Millisecond
	}

	w, err := Spawn(&cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = w.Close() })

	return w
}

// echoWorker echoes every line verbatim, including the sentinel.
const echoWorker = "exec cat"

func TestSpawn_Lifecycle(t *testing.T) {
	w := spawnScript(t, echoWorker, Config{Logger: slog.Default()})

	require.False(t, w.IsClosed())
	require.False(t, w.IsBusy())
	require.True(t, w.IsReady())

	require.NoError(t, w.Close())
	require.True(t, w.IsClosed())
	require.False(t, w.IsReady())

	// Idempotent.
	require.NoError(t, w.Close())
}

func TestSpawn_BadPath(t *testing.T) {
	_, err := Spawn(&Config{
		Path:           "/nonexistent/worker/binary",
		MinTimeout:     time.Second,
		PerLineTimeout: time.Millisecond,
	})
	require.Error(t, err)

	_, ok := stderrors.AsType[*errors.SpawnError](err)
	require.True(t, ok, "expected SpawnError, got %T", err)
}

func TestWorker_DetectsProcessDeath(t *testing.T) {
	w := spawnScript(t, "exit 3", Config{})

	// The exit-status check is asynchronous; the monitor reaps the process.
	require.Eventually(t, w.IsClosed, 5*time.Second, 10*time.Millisecond)
}

func TestClose_ReportsUnexpectedExit(t *testing.T) {
	w := spawnScript(t, "echo boom >&2\nexit 3", Config{})

	require.Eventually(t, w.IsClosed, 5*time.Second, 10*time.Millisecond)

	err := w.Close()
	require.Error(t, err)

	perr, ok := stderrors.AsType[*errors.ProcessError](err)
	require.True(t, ok, "expected ProcessError, got %T", err)
	require.Equal(t, 3, perr.ExitCode)
	require.Contains(t, perr.Stderr, "boom")

	// Repeated Close keeps reporting the same crash.
	require.Error(t, w.Close())
}

func TestWorker_StderrCallback(t *testing.T) {
	var mu sync.Mutex

	var captured []string

	w := spawnScript(t, "echo oops >&2\nexec cat", Config{
		Stderr: func(line string) {
			mu.Lock()
			captured = append(captured, line)
			mu.Unlock()
		},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(captured) > 0 && captured[0] == "oops"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
}

func TestWorker_CloseWhileBusy(t *testing.T) {
	// A worker that never answers keeps the transaction blocked until
	// another actor closes it.
	w := spawnScript(t, "exec sleep 60", Config{MinTimeout: 10 * time.Second})

	started := make(chan struct{})
	results := make(chan []string, 1)

	go func() {
		close(started)

		results <- w.TransformLines(t.Context(), []string{"a", "b"})
	}()

	<-started
	require.Eventually(t, w.IsBusy, 2*time.Second, time.Millisecond)

	require.NoError(t, w.Close())

	select {
	case out := <-results:
		// Concurrent close degrades to the original input.
		require.Equal(t, []string{"a", "b"}, out)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction did not unblock after Close")
	}
}

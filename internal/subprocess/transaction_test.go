package subprocess

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransformLines_EmptyInput(t *testing.T) {
	w := spawnScript(t, echoWorker, Config{})

	out := w.TransformLines(t.Context(), nil)
	require.Empty(t, out)
	require.False(t, w.IsBusy())
}

func TestTransformLines_RoundTrip(t *testing.T) {
	w := spawnScript(t, echoWorker, Config{})

	out := w.TransformLines(t.Context(), []string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, out)

	// The worker stays live and ready for the next batch.
	require.True(t, w.IsReady())

	out = w.TransformLines(t.Context(), []string{"c"})
	require.Equal(t, []string{"c"}, out)
}

func TestTransformLines_OutputExpansion(t *testing.T) {
	// Resolving inlined frames can emit more lines than were sent; the
	// sentinel framing, not line counting, bounds the response.
	w := spawnScript(t, `while read l; do echo "$l"; echo "$l"; done`, Config{})

	out := w.TransformLines(t.Context(), []string{"x"})
	require.Equal(t, []string{"x", "x"}, out)
}

func TestTransformLines_SentinelUniquePerCall(t *testing.T) {
	orig := newSentinel
	defer func() { newSentinel = orig }()

	var mu sync.Mutex

	seen := make(map[string]int)

	newSentinel = func() string {
		token := orig()

		mu.Lock()
		seen[token]++
		mu.Unlock()

		return token
	}

	w := spawnScript(t, echoWorker, Config{})

	w.TransformLines(t.Context(), []string{"a"})
	w.TransformLines(t.Context(), []string{"b"})

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, seen, 2)

	for token, count := range seen {
		require.Equal(t, 1, count, "sentinel %q reused", token)
	}
}

func TestTransformLines_TimeoutDegrades(t *testing.T) {
	w := spawnScript(t, "exec sleep 60", Config{MinTimeout: 100 * time.Millisecond})

	lines := []string{"a", "b", "c"}
	start := time.Now()

	out := w.TransformLines(t.Context(), lines)

	require.Equal(t, lines, out)
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, w.IsClosed())
}

func TestTransformLines_CrashDegrades(t *testing.T) {
	// Exits without echoing the sentinel: output is unreliable.
	w := spawnScript(t, `read l; echo "partial"; exit 1`, Config{MinTimeout: 2 * time.Second})

	lines := []string{"a", "b"}
	out := w.TransformLines(t.Context(), lines)

	require.Equal(t, lines, out)
	require.Eventually(t, w.IsClosed, 5*time.Second, 10*time.Millisecond)
}

func TestTransformLines_ClosedWorkerDegrades(t *testing.T) {
	w := spawnScript(t, echoWorker, Config{})
	require.NoError(t, w.Close())

	lines := []string{"a"}
	require.Equal(t, lines, w.TransformLines(t.Context(), lines))
}

func TestTransformLines_ConcurrentCallersSerialized(t *testing.T) {
	w := spawnScript(t, echoWorker, Config{})

	const callers = 8

	var wg sync.WaitGroup

	failures := make(chan string, callers)

	for i := range callers {
		wg.Go(func() {
			batch := []string{
				fmt.Sprintf("caller-%d-line-0", i),
				fmt.Sprintf("caller-%d-line-1", i),
			}

			out := w.TransformLines(t.Context(), batch)

			// No interleaving: each caller gets exactly its own lines back.
			if len(out) != len(batch) {
				failures <- fmt.Sprintf("caller %d: got %d lines", i, len(out))

				return
			}

			for j := range batch {
				if out[j] != batch[j] {
					failures <- fmt.Sprintf("caller %d: line %d = %q", i, j, out[j])

					return
				}
			}
		})
	}

	wg.Wait()
	close(failures)

	for failure := range failures {
		t.Error(failure)
	}
}

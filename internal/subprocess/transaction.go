package subprocess

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/deobfuscator-go/internal/errors"
	"github.com/wagiedev/deobfuscator-go/internal/telemetry"
)

// newSentinel generates the per-transaction end-of-batch marker. The worker
// echoes it back after emitting all output for the batch; a fresh
// high-entropy token per call makes collision with legitimate output
// negligible. Variable so tests can observe or replace generation.
var newSentinel = func() string {
	return ulid.Make().String()
}

// TransformLines sends lines to the worker and returns the transformed
// result.
//
// If anything goes wrong (process dead, write failure, timeout, concurrent
// Close), the original lines are returned unchanged: deobfuscation is a
// best-effort enhancement, never a hard dependency.
//
// Input lines carry no trailing newlines; neither does the output.
// Transactions against the same worker are strictly serialized.
func (w *Worker) TransformLines(ctx context.Context, lines []string) []string {
	if len(lines) == 0 {
		return []string{}
	}

	w.metrics.IncTransaction()

	if !w.IsReady() {
		w.log.Warn("Waiting for a busy worker")
		w.metrics.IncWait()
	}

	w.txnMu.Lock()
	w.busy.Store(true)

	defer func() {
		w.busy.Store(false)
		w.txnMu.Unlock()
	}()

	start := time.Now()

	out, err := w.execute(ctx, lines)
	if err != nil {
		return lines
	}

	w.metrics.ObserveDuration(time.Since(start))

	return out
}

// execute runs one request/response cycle. The caller holds the
// transaction lock.
func (w *Worker) execute(ctx context.Context, lines []string) ([]string, error) {
	// The process can have died since selection.
	if w.IsClosed() {
		if exited, code := w.exitStatus(); exited && !w.closeCalled() {
			w.log.Warn("Worker process exited before transform", "exit_code", code)
		} else {
			w.log.Warn("Transform requested on closed worker")
		}

		_ = w.Close()
		w.metrics.IncFailure(telemetry.ReasonClosed)

		return nil, errors.ErrWorkerClosed
	}

	sentinel := newSentinel()

	// Deobfuscated output may contain more lines than the input when frame
	// expansion occurs, so the response is framed by the sentinel rather
	// than counted. The reader drains stdout concurrently with the write:
	// pipe buffers are bounded, and write-then-read would deadlock if the
	// worker filled its output pipe before consuming all input.
	var out []string

	sawSentinel := false
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)

		for w.scanner.Scan() {
			line := w.scanner.Text()
			if line == sentinel {
				sawSentinel = true

				return
			}

			out = append(out, line)
		}

		if err := w.scanner.Err(); err != nil {
			w.log.Debug("Stdout scanner error", "error", err)
		}
	}()

	// Write in a goroutine so a blocked stdin pipe cannot outlive the
	// deadline below.
	writeErrs := make(chan error, 1)

	go func() {
		var payload strings.Builder

		for _, line := range lines {
			payload.WriteString(line)
			payload.WriteByte('\n')
		}

		payload.WriteString(sentinel)
		payload.WriteByte('\n')

		_, err := io.WriteString(w.stdin, payload.String())
		writeErrs <- err
	}()

	timeout := w.minTimeout
	if perLine := time.Duration(len(lines)) * w.perLineTimeout; perLine > timeout {
		timeout = perLine
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case err := <-writeErrs:
			if err != nil {
				w.log.Error("Failed to write batch to worker", "error", err)

				_ = w.Close()
				w.metrics.IncFailure(telemetry.ReasonWrite)

				return nil, fmt.Errorf("write batch: %w", err)
			}

			// Write complete; keep waiting for the reader.
			writeErrs = nil

		case <-readerDone:
			if w.IsClosed() {
				w.log.Warn("Worker closed by another caller during transform")
				w.metrics.IncFailure(telemetry.ReasonClosed)

				return nil, errors.ErrWorkerClosed
			}

			if !sawSentinel {
				// Stream ended without the marker: the process died and
				// whatever was read is unreliable.
				w.log.Warn("Worker output ended before end-of-batch marker")

				_ = w.Close()
				w.metrics.IncFailure(telemetry.ReasonIncomplete)

				return nil, errors.ErrIncompleteResponse
			}

			return out, nil

		case <-timer.C:
			// A hung worker: kill it so the reader unblocks, and let the
			// pool respawn a replacement on next selection.
			w.log.Error("Worker timed out", "timeout", timeout, "line_count", len(lines))

			_ = w.Close()
			w.metrics.IncFailure(telemetry.ReasonTimeout)

			return nil, errors.ErrTransactionTimeout

		case <-ctx.Done():
			w.log.Warn("Transform cancelled", "error", ctx.Err())

			_ = w.Close()
			w.metrics.IncFailure(telemetry.ReasonCancelled)

			return nil, ctx.Err()
		}
	}
}

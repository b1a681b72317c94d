package subprocess

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/deobfuscator-go/internal/errors"
	"github.com/wagiedev/deobfuscator-go/internal/telemetry"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading worker output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (callback receives all lines),
	// but the buffer stops growing after this limit to prevent unbounded memory usage.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB
)

// Config holds the configuration for spawning a worker process.
type Config struct {
	// Path is the worker binary path.
	Path string

	// Args are the worker command arguments (the mapping file path).
	Args []string

	// Env is the worker process environment. If nil, the current
	// process environment is inherited.
	Env []string

	// MinTimeout is the floor for the per-transaction deadline. It must be
	// large enough to absorb process start-up latency.
	MinTimeout time.Duration

	// PerLineTimeout is the per-input-line processing budget added on top
	// of MinTimeout for large batches.
	PerLineTimeout time.Duration

	// Logger receives debug, info, warn, and error messages.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Stderr is an optional callback invoked with each worker stderr line.
	Stderr func(string)

	// Metrics receives transaction telemetry. May be nil.
	Metrics *telemetry.Metrics
}

// procState is the process lifecycle state shared between a Worker and its
// exit-monitor goroutine. Keeping it separate from Worker lets the Worker
// itself become collectable (for the leak diagnostic) while the monitor is
// still blocked on a live process.
type procState struct {
	mu          sync.Mutex
	closed      bool // Close was called
	stdinClosed bool
	exitCode    int           // valid once exited is closed
	procErr     error         // ProcessError recorded for an unexpected exit
	exited      chan struct{} // closed by the monitor after the process exits
}

// stderrSink accumulates worker stderr up to a cap and forwards lines to an
// optional callback.
type stderrSink struct {
	mu       sync.Mutex
	buf      strings.Builder
	callback func(string)
}

func (s *stderrSink) add(line string) {
	s.mu.Lock()

	if s.buf.Len() < maxStderrBufferSize {
		if s.buf.Len() > 0 {
			s.buf.WriteString("\n")
		}

		s.buf.WriteString(line)
	}

	s.mu.Unlock()

	if s.callback != nil {
		s.callback(line)
	}
}

func (s *stderrSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.String()
}

// Worker owns one external deobfuscation process and its pipes.
//
// A worker is either live (process running, streams open) or closed
// (terminated, streams released). A closed worker is never reused; the pool
// discards it and spawns a replacement.
type Worker struct {
	log     *slog.Logger
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner // persistent over stdout; transactions are serialized
	state   *procState
	stderr  *stderrSink
	metrics *telemetry.Metrics

	minTimeout     time.Duration
	perLineTimeout time.Duration

	txnMu sync.Mutex  // serializes transactions against this worker
	busy  atomic.Bool // set while txnMu is held; sync.Mutex has no "is held" query

	cleanup runtime.Cleanup
}

// Spawn launches a worker process with piped stdin/stdout/stderr.
//
// The process is started eagerly so its start-up latency is paid here, at
// pool construction or repair, rather than on the first transform's
// critical path. Returns a SpawnError if the process cannot be started.
func Spawn(cfg *Config) (*Worker, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	log = log.With("component", "worker")

	//nolint:gosec // G204: spawning the configured worker binary is the point
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = cfg.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error("Failed to create stdin pipe", "error", err)

		return nil, &errors.SpawnError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Error("Failed to create stdout pipe", "error", err)

		return nil, &errors.SpawnError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.Error("Failed to create stderr pipe", "error", err)

		return nil, &errors.SpawnError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		log.Error("Failed to start worker process", "error", err)

		return nil, &errors.SpawnError{Err: fmt.Errorf("start process: %w", err)}
	}

	log = log.With("pid", cmd.Process.Pid)
	log.Info("Worker process started")

	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	state := &procState{exited: make(chan struct{})}
	sink := &stderrSink{callback: cfg.Stderr}

	w := &Worker{
		log:            log,
		cmd:            cmd,
		stdin:          stdin,
		scanner:        scanner,
		state:          state,
		stderr:         sink,
		metrics:        cfg.Metrics,
		minTimeout:     cfg.MinTimeout,
		perLineTimeout: cfg.PerLineTimeout,
	}

	// Stderr must be fully drained before Wait() (see os/exec pipe docs).
	stderrDone := make(chan struct{})

	go func() {
		defer close(stderrDone)

		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			sink.add(scanner.Text())
		}

		if err := scanner.Err(); err != nil {
			log.Debug("Stderr scanner error", "error", err)
		}
	}()

	go monitor(log, cmd, state, sink, stderrDone)

	// Diagnostic only: a worker dropped without Close leaks its process.
	w.cleanup = runtime.AddCleanup(w, leakWarning, leakState{
		log:   log,
		state: state,
	})

	return w, nil
}

// leakState carries what the leak diagnostic needs without retaining the
// Worker itself.
type leakState struct {
	log   *slog.Logger
	state *procState
}

func leakWarning(ls leakState) {
	ls.state.mu.Lock()
	closed := ls.state.closed
	ls.state.mu.Unlock()

	if !closed {
		ls.log.Error("Worker dropped without Close(); process may be leaked")
	}
}

// monitor reaps the worker process exactly once and records its exit.
// It runs detached from the Worker so a live process never pins the handle.
func monitor(
	log *slog.Logger,
	cmd *exec.Cmd,
	state *procState,
	sink *stderrSink,
	stderrDone <-chan struct{},
) {
	<-stderrDone

	err := cmd.Wait()

	exitCode := 0
	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		exitCode = exitErr.ExitCode()
	}

	state.mu.Lock()
	state.exitCode = exitCode
	closing := state.closed

	var procErr *errors.ProcessError

	if !closing {
		procErr = &errors.ProcessError{
			ExitCode: exitCode,
			Stderr:   sink.String(),
			Err:      err,
		}
		state.procErr = procErr
	}

	state.mu.Unlock()

	if closing {
		log.Debug("Worker process terminated during shutdown")
	} else {
		// A long-lived worker has no reason to exit on its own.
		log.Warn("Worker process exited unexpectedly", "error", procErr)
	}

	close(state.exited)
}

// IsClosed reports whether the worker was explicitly closed or its process
// has already exited. The process can die asynchronously at any point, so
// callers re-check this around blocking operations.
func (w *Worker) IsClosed() bool {
	w.state.mu.Lock()
	closed := w.state.closed
	w.state.mu.Unlock()

	if closed {
		return true
	}

	select {
	case <-w.state.exited:
		return true
	default:
		return false
	}
}

// IsBusy reports whether a transaction currently holds this worker.
func (w *Worker) IsBusy() bool {
	return w.busy.Load()
}

// IsReady reports whether the worker can accept a transaction immediately.
func (w *Worker) IsReady() bool {
	return !w.IsClosed() && !w.IsBusy()
}

// Close terminates the worker process. It is idempotent and safe to call
// concurrently with an in-flight transaction: the transaction observes the
// closed state after its wait and degrades instead of crashing.
//
// If the process already died on its own before Close, the ProcessError
// recorded at exit is returned so callers can report the crash.
func (w *Worker) Close() error {
	w.state.mu.Lock()

	if w.state.closed {
		w.state.mu.Unlock()
		<-w.state.exited

		return w.procError()
	}

	w.state.closed = true

	alreadyExited := false

	select {
	case <-w.state.exited:
		alreadyExited = true
	default:
	}

	if !w.state.stdinClosed {
		w.state.stdinClosed = true

		_ = w.stdin.Close()
	}

	w.state.mu.Unlock()

	w.cleanup.Stop()

	if !alreadyExited {
		w.log.Debug("Killing worker process")

		if err := w.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			// Still wait for the monitor so the process is reaped if possible.
			<-w.state.exited

			return fmt.Errorf("kill worker process: %w", err)
		}
	}

	<-w.state.exited
	w.log.Info("Worker closed")

	return w.procError()
}

// procError returns the ProcessError recorded by the monitor for an
// unexpected exit, or nil for a clean shutdown.
func (w *Worker) procError() error {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	return w.state.procErr
}

// exitStatus returns whether the process has exited and, if so, its exit code.
func (w *Worker) exitStatus() (bool, int) {
	select {
	case <-w.state.exited:
		w.state.mu.Lock()
		code := w.state.exitCode
		w.state.mu.Unlock()

		return true, code
	default:
		return false, 0
	}
}

// closeCalled reports whether Close was explicitly invoked.
func (w *Worker) closeCalled() bool {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	return w.state.closed
}

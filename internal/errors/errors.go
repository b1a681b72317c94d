package errors

import (
	"errors"
	"fmt"
)

// DeobfuscatorError is the base interface for all errors produced by this module.
type DeobfuscatorError interface {
	error
	IsDeobfuscatorError() bool
}

// Compile-time verification that all error types implement DeobfuscatorError.
var (
	_ DeobfuscatorError = (*WorkerNotFoundError)(nil)
	_ DeobfuscatorError = (*SpawnError)(nil)
	_ DeobfuscatorError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrWorkerClosed indicates the worker was closed (explicitly or by
	// process death) before or during a transaction.
	ErrWorkerClosed = errors.New("worker closed")

	// ErrTransactionTimeout indicates a transaction exceeded its computed deadline.
	ErrTransactionTimeout = errors.New("transaction timeout")

	// ErrIncompleteResponse indicates the worker's output stream ended before
	// the end-of-batch marker was seen. Output received so far is unreliable.
	ErrIncompleteResponse = errors.New("incomplete response from worker")
)

// WorkerNotFoundError indicates the worker binary was not found.
type WorkerNotFoundError struct {
	SearchedPaths []string
}

func (e *WorkerNotFoundError) Error() string {
	return fmt.Sprintf("deobfuscation worker not found in: %v", e.SearchedPaths)
}

// IsDeobfuscatorError implements DeobfuscatorError.
func (e *WorkerNotFoundError) IsDeobfuscatorError() bool { return true }

// SpawnError indicates a worker process failed to start.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn worker: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsDeobfuscatorError implements DeobfuscatorError.
func (e *SpawnError) IsDeobfuscatorError() bool { return true }

// ProcessError indicates the worker process exited abnormally.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("worker process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsDeobfuscatorError implements DeobfuscatorError.
func (e *ProcessError) IsDeobfuscatorError() bool { return true }

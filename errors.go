package deobfuscator

import "github.com/wagiedev/deobfuscator-go/internal/errors"

// Re-export error types from internal package

// WorkerNotFoundError indicates the worker binary was not found.
type WorkerNotFoundError = errors.WorkerNotFoundError

// SpawnError indicates a worker process failed to start.
type SpawnError = errors.SpawnError

// ProcessError indicates the worker process exited abnormally.
type ProcessError = errors.ProcessError

// DeobfuscatorError is the base interface for all errors produced by this module.
type DeobfuscatorError = errors.DeobfuscatorError

// Re-export sentinel errors from internal package.
var (
	// ErrWorkerClosed indicates a worker was closed before or during a transaction.
	ErrWorkerClosed = errors.ErrWorkerClosed

	// ErrTransactionTimeout indicates a transaction exceeded its computed deadline.
	ErrTransactionTimeout = errors.ErrTransactionTimeout

	// ErrIncompleteResponse indicates a worker's output ended before the
	// end-of-batch marker.
	ErrIncompleteResponse = errors.ErrIncompleteResponse
)

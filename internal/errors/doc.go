// Package errors defines the error taxonomy for the deobfuscator module.
//
// Two kinds of errors are provided:
//
//   - Typed error structs (WorkerNotFoundError, SpawnError, ProcessError)
//     that carry structured context and implement the DeobfuscatorError
//     marker interface.
//   - Sentinel errors (ErrWorkerClosed, ErrTransactionTimeout,
//     ErrIncompleteResponse) for conditions checked with errors.Is.
//
// Transaction-level errors never escape the public API: the pool absorbs
// them and returns the caller's input unchanged. They exist so internal
// code paths can distinguish failure reasons for logging and telemetry.
package errors

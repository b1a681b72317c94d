// Package subprocess owns the external deobfuscation worker process and the
// request-transaction protocol spoken over its pipes.
//
// A Worker wraps one long-lived process communicating over newline-delimited
// text on stdin/stdout. Each TransformLines call frames its batch with a
// fresh sentinel token: N input lines followed by the sentinel on its own
// line, answered by zero or more output lines followed by the same sentinel
// echoed back. A dedicated goroutine drains stdout while the caller writes
// stdin, because both pipes have bounded buffering.
//
// All failures (process death, write errors, timeouts, concurrent Close)
// degrade to returning the input unchanged. Timeouts scale with batch size:
// max(MinTimeout, lineCount * PerLineTimeout).
package subprocess

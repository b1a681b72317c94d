package deobfuscator

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultPoolSize is the number of workers spawned when Options.PoolSize
	// is zero.
	DefaultPoolSize = 4

	// DefaultMinTimeout is the floor for the per-transaction deadline.
	// Large enough to account for process start-up.
	DefaultMinTimeout = 5 * time.Second

	// DefaultPerLineTimeout is the per-line processing budget
	// (a worker should manage about 500 lines per second).
	DefaultPerLineTimeout = 2 * time.Millisecond
)

// Options configures a Pool.
//
// The zero value is usable: defaults are applied by New.
type Options struct {
	// Logger is the slog logger for operational output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// PoolSize is the number of worker processes. Defaults to DefaultPoolSize.
	PoolSize int

	// WorkerPath is the explicit path to the worker binary.
	// If empty, the binary is searched in PATH and common locations.
	WorkerPath string

	// Env provides additional environment variables for worker processes.
	Env map[string]string

	// MinTimeout overrides DefaultMinTimeout when positive.
	MinTimeout time.Duration

	// PerLineTimeout overrides DefaultPerLineTimeout when positive.
	PerLineTimeout time.Duration

	// Stderr is called with each stderr line emitted by any worker process.
	Stderr func(string)

	// Registerer receives pool metrics. If nil, metrics are disabled.
	Registerer prometheus.Registerer
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}

	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}

	if opts.MinTimeout <= 0 {
		opts.MinTimeout = DefaultMinTimeout
	}

	if opts.PerLineTimeout <= 0 {
		opts.PerLineTimeout = DefaultPerLineTimeout
	}

	if opts.Logger == nil {
		opts.Logger = NopLogger()
	}

	return opts
}

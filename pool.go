package deobfuscator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/wagiedev/deobfuscator-go/internal/cli"
	"github.com/wagiedev/deobfuscator-go/internal/subprocess"
	"github.com/wagiedev/deobfuscator-go/internal/telemetry"
)

// Pool presents a single transform entry point backed by a fixed number of
// independent worker processes, load-balanced by rotation and self-healing
// on worker death.
//
// Requests against different workers proceed concurrently; requests that
// land on the same worker are serialized. Dead workers are replaced lazily,
// at selection time, rather than by a background supervisor. That keeps the
// design free of a supervisory goroutine at the cost of detecting death
// only on next use.
type Pool struct {
	log     *slog.Logger
	metrics *telemetry.Metrics
	spawn   func() (*subprocess.Worker, error)

	mu      sync.Mutex           // serializes selection and repair
	workers []*subprocess.Worker // nil once closed; order encodes recency
}

// New creates a pool of eagerly spawned workers resolving names through the
// given mapping file.
//
// The worker binary is discovered once (explicit Options.WorkerPath, then
// PATH, then common locations). Returns an error if the binary cannot be
// found or any initial spawn fails; workers already started are closed
// before returning.
func New(mappingPath string, opts *Options) (*Pool, error) {
	options := opts.withDefaults()
	log := options.Logger.With("component", "pool")

	discoverer := cli.NewDiscoverer(&cli.Config{
		WorkerPath: options.WorkerPath,
		Logger:     log,
	})

	workerPath, err := discoverer.Discover()
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New(options.Registerer)

	cfg := &subprocess.Config{
		Path:           workerPath,
		Args:           cli.BuildArgs(mappingPath),
		Env:            cli.BuildEnvironment(options.Env),
		MinTimeout:     options.MinTimeout,
		PerLineTimeout: options.PerLineTimeout,
		Logger:         options.Logger,
		Stderr:         options.Stderr,
		Metrics:        metrics,
	}

	spawn := func() (*subprocess.Worker, error) {
		return subprocess.Spawn(cfg)
	}

	workers := make([]*subprocess.Worker, 0, options.PoolSize)

	for range options.PoolSize {
		w, err := spawn()
		if err != nil {
			for _, started := range workers {
				_ = started.Close()
			}

			return nil, err
		}

		workers = append(workers, w)
	}

	log.Info("Worker pool started", "pool_size", options.PoolSize, "worker", workerPath)

	return &Pool{
		log:     log,
		metrics: metrics,
		spawn:   spawn,
		workers: workers,
	}, nil
}

// TransformLines deobfuscates obfuscated names found in the given lines.
//
// If anything goes wrong with the selected worker (crash, timeout, write
// failure), the original lines are returned unchanged; callers always get
// valid output. Lines carry no trailing newlines.
//
// TransformLines panics if called after Close.
func (p *Pool) TransformLines(ctx context.Context, lines []string) []string {
	p.mu.Lock()

	if p.workers == nil {
		p.mu.Unlock()
		panic("deobfuscator: TransformLines called on a closed Pool")
	}

	if len(lines) == 0 {
		p.mu.Unlock()

		return []string{}
	}

	// Replace any worker that died since the last selection.
	for i, w := range p.workers {
		if !w.IsClosed() {
			continue
		}

		p.log.Warn("Restarting closed worker")

		replacement, err := p.spawn()
		if err != nil {
			// Leave the dead slot; the next selection retries and the
			// transaction path degrades to echoing input meanwhile.
			p.log.Warn("Failed to respawn worker", "error", err)

			continue
		}

		p.metrics.IncRestart()
		p.workers[i] = replacement
	}

	// First ready worker, or the least-recently-used slot if none are
	// ready (accept the wait rather than fail the request).
	selected := p.workers[0]
	idx := 0

	for i, w := range p.workers {
		if w.IsReady() {
			selected = w
			idx = i

			break
		}
	}

	// Rotate so the next caller does not choose the same worker.
	p.workers = append(append(p.workers[:idx], p.workers[idx+1:]...), selected)

	p.mu.Unlock()

	// Outside the lock: a slow transaction on this worker must not block
	// other callers from selecting a different one.
	return selected.TransformLines(ctx, lines)
}

// Size returns the configured number of worker slots, or zero after Close.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.workers)
}

// Close terminates every worker and shuts the pool down.
// TransformLines must not be called afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.workers == nil {
		return nil
	}

	var errs []error

	for _, w := range p.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.workers = nil
	p.log.Info("Worker pool closed")

	return stderrors.Join(errs...)
}

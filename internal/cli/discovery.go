package cli

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wagiedev/deobfuscator-go/internal/errors"
)

// WorkerBinaryName is the name of the worker executable searched for in PATH.
const WorkerBinaryName = "deobfuscate-worker"

// Config holds configuration for worker binary discovery.
type Config struct {
	// WorkerPath is an explicit worker binary path that skips PATH search.
	// If empty, discovery will search PATH and common locations.
	WorkerPath string

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the deobfuscation worker binary.
type Discoverer interface {
	// Discover locates the worker binary.
	// Returns the path to the binary or a WorkerNotFoundError.
	Discover() (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new worker discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the worker binary.
func (d *discoverer) Discover() (string, error) {
	// If explicit path provided, use it and only it
	if d.cfg.WorkerPath != "" {
		d.log.Debug("Using explicit worker path", "worker_path", d.cfg.WorkerPath)

		if _, err := os.Stat(d.cfg.WorkerPath); err == nil {
			return d.cfg.WorkerPath, nil
		}

		d.log.Debug("Explicit worker path not found", "worker_path", d.cfg.WorkerPath)

		return "", &errors.WorkerNotFoundError{SearchedPaths: []string{d.cfg.WorkerPath}}
	}

	searchedPaths := make([]string, 0, 4)

	// Search in PATH
	d.log.Debug("Searching for worker in PATH", "binary", WorkerBinaryName)

	if path, err := exec.LookPath(WorkerBinaryName); err == nil {
		d.log.Debug("Found worker in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	// Check common locations
	commonPaths := []string{
		filepath.Join("/usr/local/bin", WorkerBinaryName),
		filepath.Join("/usr/bin", WorkerBinaryName),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(homeDir, ".local/bin", WorkerBinaryName))
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)
		d.log.Debug("Checking common path", "path", path)

		if _, err := os.Stat(path); err == nil {
			d.log.Debug("Found worker at common path", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Worker binary not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.WorkerNotFoundError{SearchedPaths: searchedPaths}
}

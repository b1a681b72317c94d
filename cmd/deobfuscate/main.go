// Command deobfuscate filters newline-delimited text from stdin through a
// pool of deobfuscation workers and writes the resolved lines to stdout.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	deobfuscator "github.com/wagiedev/deobfuscator-go"
)

// maxLineSize is the scanner buffer for stdin; stack dumps can carry very
// long frames.
const maxLineSize = 1024 * 1024

// settings is the merged CLI configuration: defaults, then YAML config file,
// then DEOBFUSCATE_* environment variables (DEOBFUSCATE_POOL_SIZE and so on),
// then flags.
type settings struct {
	PoolSize    int    `koanf:"pool_size"`
	BatchSize   int    `koanf:"batch_size"`
	Worker      string `koanf:"worker"`
	MetricsPort int    `koanf:"metrics_port"`
	Verbose     bool   `koanf:"verbose"`
}

func loadSettings(configPath string) (settings, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return settings{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}

	// The callback maps DEOBFUSCATE_POOL_SIZE to the flat "pool_size" key;
	// koanf's nil-callback default would keep the raw prefixed name.
	_ = k.Load(env.Provider("DEOBFUSCATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DEOBFUSCATE_"))
	}), nil)

	var cfg settings
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = deobfuscator.DefaultPoolSize
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2000
	}

	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deobfuscate <mapping-file>",
		Short: "Resolve obfuscated symbol names in text piped through stdin",
		Long: `Reads newline-delimited text from stdin, resolves obfuscated symbol
names through a pool of worker processes using the given mapping file, and
writes the result to stdout. Lines the workers cannot process are passed
through unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: run,

		SilenceUsage: true,
	}

	cmd.Flags().IntP("pool-size", "p", 0, "Number of worker processes (default 4)")
	cmd.Flags().IntP("batch-size", "b", 0, "Lines per worker batch (default 2000)")
	cmd.Flags().StringP("worker", "w", "", "Explicit path to the worker binary")
	cmd.Flags().StringP("config", "c", "", "Path to a YAML config file")
	cmd.Flags().Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")
	cmd.Flags().BoolP("verbose", "v", false, "Log operational output to stderr")

	return cmd
}

func run(cmd *cobra.Command, args []string) (err error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	// Flags override file and environment.
	if cmd.Flags().Changed("pool-size") {
		cfg.PoolSize, _ = cmd.Flags().GetInt("pool-size")
	}

	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}

	if cmd.Flags().Changed("worker") {
		cfg.Worker, _ = cmd.Flags().GetString("worker")
	}

	if cmd.Flags().Changed("metrics-port") {
		cfg.MetricsPort, _ = cmd.Flags().GetInt("metrics-port")
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}

	logger := deobfuscator.NopLogger()
	if cfg.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var registry *prometheus.Registry

	if cfg.MetricsPort > 0 {
		registry = prometheus.NewRegistry()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	opts := &deobfuscator.Options{
		Logger:     logger,
		PoolSize:   cfg.PoolSize,
		WorkerPath: cfg.Worker,
	}
	if registry != nil {
		opts.Registerer = registry
	}

	pool, err := deobfuscator.New(args[0], opts)
	if err != nil {
		return err
	}

	// Close reports workers that crashed during the run.
	defer func() { err = errors.Join(err, pool.Close()) }()

	lines, err := readLines(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	batches := chunk(lines, cfg.BatchSize)
	results := make([][]string, len(batches))

	// Fan batches out across the pool; results keep input order.
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.PoolSize)

	for i, batch := range batches {
		g.Go(func() error {
			results[i] = pool.TransformLines(ctx, batch)

			return nil
		})
	}

	// Workers never fail a batch (they degrade to echoing input), so the
	// only error source is a cancelled context.
	if err := g.Wait(); err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	for _, batch := range results {
		for _, line := range batch {
			fmt.Fprintln(out, line)
		}
	}

	return out.Flush()
}

func readLines(r *os.File) ([]string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxLineSize)
	scanner.Buffer(buf, maxLineSize)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

func chunk(lines []string, size int) [][]string {
	var batches [][]string

	for len(lines) > size {
		batches = append(batches, lines[:size])
		lines = lines[size:]
	}

	if len(lines) > 0 {
		batches = append(batches, lines)
	}

	return batches
}

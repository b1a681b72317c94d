// Package cli provides discovery and invocation building for the external
// deobfuscation worker binary.
//
// # Discovery
//
// The Discoverer interface locates the worker binary:
//
//	discoverer := cli.NewDiscoverer(&cli.Config{
//	    WorkerPath: "",           // Optional explicit path
//	    Logger:     slog.Default(),
//	})
//	workerPath, err := discoverer.Discover()
//
// Discovery searches in the following order:
//  1. Explicit path in Config.WorkerPath (if provided)
//  2. System PATH (binary name "deobfuscate-worker")
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// # Invocation
//
// The package provides functions to build the worker's arguments and
// environment:
//
//	args := cli.BuildArgs(mappingPath)
//	env := cli.BuildEnvironment(options.Env)
package cli

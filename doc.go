// Package deobfuscator manages a pool of long-lived external worker
// processes that resolve obfuscated symbol names in batches of text lines.
//
// Workers are external executables taking a single mapping-file argument and
// speaking newline-delimited text over stdin/stdout. The pool spawns them
// eagerly, serializes at most one request per worker, enforces per-request
// timeouts proportional to batch size, and replaces crashed or hung workers
// lazily at selection time.
//
// # Basic Usage
//
//	pool, err := deobfuscator.New("proguard.mapping", &deobfuscator.Options{
//	    Logger: slog.Default(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	resolved := pool.TransformLines(ctx, stackLines)
//
// TransformLines never fails on worker misbehavior: crashes, timeouts, and
// write errors all degrade to returning the input unchanged, so symbol names
// simply remain obfuscated. The only hard failure is misuse — calling
// TransformLines on a closed pool panics.
//
// # Telemetry
//
// Supply Options.Registerer to export Prometheus counters for transactions,
// failures by reason, worker restarts, and waits behind busy workers.
package deobfuscator

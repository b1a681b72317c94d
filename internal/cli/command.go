package cli

import (
	"fmt"
	"os"
)

// BuildArgs constructs the worker command arguments.
//
// The worker wire contract is a single positional argument: the path to the
// mapping file used to resolve obfuscated names.
func BuildArgs(mappingPath string) []string {
	return []string{mappingPath}
}

// BuildEnvironment constructs the worker process environment.
//
// The inherited environment is extended with the provided overrides.
func BuildEnvironment(extra map[string]string) []string {
	env := os.Environ()

	for key, value := range extra {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}

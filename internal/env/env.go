// Package env provides .env file loading and environment lookups with
// fallbacks. API keys and endpoint URLs live in gitignored .env files
// rather than in the YAML config.
package env

import (
	"os"
	"strings"
)

// Load reads KEY=VALUE pairs from a .env file in the current working
// directory and sets them with os.Setenv. A missing file is not an error;
// system environment variables still apply. Lines starting with # are
// comments, and values may be quoted.
func Load() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on the first "=" so values may contain "=".
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		os.Setenv(key, value)
	}
}

// Lookup returns the value of the named variable, or fallback when the
// variable is unset. An empty value counts as set.
func Lookup(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

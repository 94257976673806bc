// Package env reads process environment variables with fallbacks. Typed
// configuration lives in pkg/config; this exists for the few knobs that must
// resolve before config loads, like the logger's output format.
package env

import "os"

func Get(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

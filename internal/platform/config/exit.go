package config

import (
	"fmt"
	"os"
)

// Exitf reports a fatal startup error and terminates the process with
// status 1. It is meant for CLI entry points that fail before logging
// is configured; the formatted message goes to stderr.
func Exitf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// Package main provides the ashtiers CLI: it builds the tiers from a config file, environment
// and flags, and reports on them, simulates load or serves their metrics.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

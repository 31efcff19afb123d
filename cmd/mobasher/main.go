// Package main is the entry point for the mobasher operator CLI.
package main

import (
	"errors"
	"os"

	"github.com/mobasher/mobasher/cmd/mobasher/cmd"
	"github.com/mobasher/mobasher/internal/retention"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Destructive commands refused without confirmation exit with a
		// distinct code so wrappers can tell refusal from failure.
		if errors.Is(err, retention.ErrNotConfirmed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

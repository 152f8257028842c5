package main

import (
	"errors"
	"fmt"
	"os"
)

var (
	// Version is set at build time via ldflags and must match the server's
	Version = "0.1.0"
)

// exitError carries a failure the client has already shown to the user
type exitError struct{ err error }

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var shown *exitError
		if !errors.As(err, &shown) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

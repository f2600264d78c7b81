package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupted scans and daemon shutdowns already logged their exit.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "mediashelf: %v\n", err)
		}
		os.Exit(1)
	}
}

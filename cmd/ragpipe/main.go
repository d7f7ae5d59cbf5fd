// Package main is the entry point for the ragpipe CLI.
package main

import (
	"os"

	"github.com/ragpipe-dev/ragpipe/cmd/ragpipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

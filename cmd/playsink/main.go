// Package main is the entry point for the playsink application.
package main

import (
	"os"

	"github.com/playsink/playsink/cmd/playsink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

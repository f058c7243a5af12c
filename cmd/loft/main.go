// Package main is the entry point for the loft CLI tool.
package main

import (
	"os"

	"github.com/loftdb/loft/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

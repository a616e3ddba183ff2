// Package main is the entry point for the rxcost CLI.
package main

import (
	"os"

	"rxcost/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

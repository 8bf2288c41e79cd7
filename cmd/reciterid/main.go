// Package main is the entry point for the reciterid CLI.
//
// Usage:
//
//	reciterid [flags] <command> [args]
//
// Commands:
//
//	serve     - Run the identification HTTP server
//	enroll    - Build a reference store from a clip dataset
//	identify  - Identify the reciter in one audio file
//	evaluate  - Score identification accuracy on a labeled dataset
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/miqra/reciterid/cmd/reciterid/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

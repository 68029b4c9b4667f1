// Package main provides the entry point for the wflow CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/wflow/cmd/wflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

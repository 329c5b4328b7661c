package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "fsald",
	Short:   "fsald - filesystem abstraction daemon",
	Version: "v0.1.0",
	Long:    "fsald - indexes one or more directory trees in a relational mirror and serves list/search/transfer/remove/change-feed operations over a local Unix socket.",
}

// Execute runs the root command: parse, run, and report any error to
// stderr with a non-zero exit rather than panicking out of main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fsald: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

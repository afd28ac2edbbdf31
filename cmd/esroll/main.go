// Package main is the entry point for the esroll CLI.
//
// esroll performs a rolling upgrade of an Elasticsearch cluster: it upgrades
// the software (and optionally the operating system) on each node in turn,
// gating every node transition on cluster health so the cluster stays
// available throughout.
//
// For detailed usage information, run:
//
//	esroll --help
package main

import (
	"fmt"
	"os"

	"github.com/esctl/esroll/cmd/esroll/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

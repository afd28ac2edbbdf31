package commands

import (
	"github.com/spf13/cobra"

	"github.com/esctl/esroll/cmd/esroll/handlers"
	"github.com/esctl/esroll/internal/config"
)

// Health returns the command for displaying cluster health status.
//
// The command queries the first reachable node and prints the cluster
// status; it exits non-zero unless the cluster is green, so it can be
// used as a pre-flight check in scripts.
func Health() *cobra.Command {
	defaults := config.Default()
	var opts handlers.HealthOptions

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show cluster health status",
		Long: `Display the current health status of an Elasticsearch cluster.

Queries the cluster through the first node in the list and prints the
status (green, yellow or red). The command exits with a non-zero status
unless the cluster is green.

Examples:
  # Check cluster health
  esroll health --nodes es1.internal

  # Check a TLS-protected cluster
  esroll health --nodes es1.internal --ssl --username admin --password secret`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Changed = changedFlags(cmd)
			return handlers.Health(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVarP(&opts.Nodes, "nodes", "n", "", "Comma-separated host names or IP addresses of nodes")
	flags.IntVarP(&opts.Port, "port", "p", defaults.Port, "Elasticsearch HTTP port")
	flags.BoolVarP(&opts.SSL, "ssl", "s", false, "Connect with https")
	flags.BoolVar(&opts.InsecureSkipVerify, "insecure-skip-verify", false, "Skip TLS certificate verification")
	flags.StringVarP(&opts.Username, "username", "u", "", "Username for Elasticsearch authentication")
	flags.StringVarP(&opts.Password, "password", "P", "", "Password for Elasticsearch authentication")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/esctl/esroll/cmd/esroll/handlers"
	"github.com/esctl/esroll/internal/config"
)

// Upgrade returns the command that performs the rolling cluster upgrade.
//
// The upgrade processes nodes strictly in the order given, one at a time:
// shard allocation is disabled, the node is upgraded (and optionally
// rebooted), and the command waits for the node to rejoin and for cluster
// health to return to green before moving on. The run aborts on the first
// node failure.
//
// Flags default to yum/systemd hosts; every remote command is overridable.
// A YAML config file (--config) may supply any setting; explicitly passed
// flags win over file values.
func Upgrade() *cobra.Command {
	defaults := config.Default()
	var opts handlers.UpgradeOptions

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Perform a rolling upgrade of the cluster",
		Long: `Perform a rolling upgrade of an Elasticsearch cluster.

For each node, in order:
1. Skip the software upgrade if the node is already at or above the target
2. Disable shard allocation and perform a best-effort synced flush
3. Stop the service, upgrade the package, optionally upgrade the OS
4. Reboot if warranted, otherwise restart the service
5. Wait until the node rejoins the cluster
6. Re-enable shard allocation and wait until cluster status is green

The run refuses to start unless cluster health is green, and aborts on the
first node failure so at most one node is ever out of service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Changed = changedFlags(cmd)
			return handlers.Upgrade(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVarP(&opts.Nodes, "nodes", "n", "", "Comma-separated host names or IP addresses of nodes, in upgrade order")
	flags.IntVarP(&opts.Port, "port", "p", defaults.Port, "Elasticsearch HTTP port")
	flags.BoolVarP(&opts.SSL, "ssl", "s", false, "Connect with https")
	flags.BoolVar(&opts.InsecureSkipVerify, "insecure-skip-verify", false, "Skip TLS certificate verification")
	flags.StringVarP(&opts.Username, "username", "u", "", "Username for Elasticsearch authentication")
	flags.StringVarP(&opts.Password, "password", "P", "", "Password for Elasticsearch authentication")
	flags.StringVar(&opts.TargetVersion, "target-version", defaults.Version,
		`A specific version to upgrade to, or "latest". Nodes with an equal or higher version are skipped`)
	flags.StringVar(&opts.ServiceStopCommand, "service-stop-command", defaults.Commands.ServiceStop,
		"Shell command to stop the Elasticsearch service on a node")
	flags.StringVar(&opts.ServiceStartCommand, "service-start-command", defaults.Commands.ServiceStart,
		"Shell command to start the Elasticsearch service on a node")
	flags.StringVar(&opts.UpgradeCommand, "upgrade-command", defaults.Commands.Upgrade,
		"Shell command to upgrade Elasticsearch on a node")
	flags.StringVar(&opts.LatestVersionCommand, "latest-version-command", defaults.Commands.LatestVersion,
		"Shell command that prints the latest version available in the repository")
	flags.StringVar(&opts.UpgradeSystemCommand, "upgrade-system-command", defaults.Commands.UpgradeSystem,
		"Shell command to upgrade the operating system on a node")
	flags.StringVar(&opts.RebootCommand, "reboot-command", defaults.Commands.Reboot,
		"Shell command to reboot a node")
	flags.BoolVar(&opts.UpgradeSystem, "upgrade-system", false, "Also upgrade the operating system after upgrading Elasticsearch")
	flags.BoolVar(&opts.Reboot, "reboot", false, "Reboot a node if an actual upgrade took place")
	flags.BoolVar(&opts.ForceReboot, "force-reboot", false, "Always reboot every node, even when nothing was upgraded")
	flags.StringVar(&opts.SSHUser, "ssh-user", defaults.SSH.User, "SSH login user")
	flags.IntVar(&opts.SSHPort, "ssh-port", defaults.SSH.Port, "SSH port")
	flags.StringVar(&opts.SSHKeyPath, "ssh-key", "", "Path to the SSH private key")
	flags.IntVar(&opts.PollInterval, "poll-interval", defaults.PollIntervalSeconds,
		"Seconds between wait-loop polls")
	flags.IntVar(&opts.MaxWaitAttempts, "max-wait-attempts", 0,
		"Give up waiting for join/green after this many polls (0 = wait forever)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus run metrics on this address (e.g. :9108)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Display more information")

	return cmd
}

// changedFlags returns the names of flags the user set explicitly, so file
// values are only overridden by flags that were actually passed.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

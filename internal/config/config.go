// Package config defines the configuration structure and methods for esroll.
package config

import (
	"fmt"

	"github.com/esctl/esroll/internal/esversion"
)

// VersionLatest is the sentinel that resolves the target version from the
// package repository of the first node.
const VersionLatest = "latest"

const (
	defaultPort         = 9200
	defaultSSHPort      = 22
	defaultSSHUser      = "root"
	defaultPollInterval = 5
)

// Config holds the full esroll configuration.
type Config struct {
	// Nodes are host names or IP addresses of the cluster members, in
	// upgrade order.
	Nodes []string `mapstructure:"nodes" yaml:"nodes"`

	// Port is the Elasticsearch HTTP port. Default 9200.
	Port int `mapstructure:"port" yaml:"port"`

	// SSL connects with https instead of http.
	SSL bool `mapstructure:"ssl" yaml:"ssl"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// Username and Password form an optional basic-auth pair applied to
	// every Elasticsearch API call.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Version is a specific version to upgrade to, or "latest". Nodes at or
	// above this version are skipped. Default "latest".
	Version string `mapstructure:"version" yaml:"version"`

	// UpgradeSystem also upgrades the operating system on each node.
	UpgradeSystem bool `mapstructure:"upgrade_system" yaml:"upgrade_system"`

	// Reboot reboots a node when an actual upgrade took place.
	Reboot bool `mapstructure:"reboot" yaml:"reboot"`

	// ForceReboot always reboots, even when nothing was upgraded.
	ForceReboot bool `mapstructure:"force_reboot" yaml:"force_reboot"`

	// Verbose widens log output.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// PollIntervalSeconds is the wait-loop polling interval. Default 5.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`

	// MaxWaitAttempts bounds the wait loops. Default 0: poll indefinitely.
	MaxWaitAttempts int `mapstructure:"max_wait_attempts" yaml:"max_wait_attempts"`

	// MetricsAddr, when set, serves Prometheus run metrics on this address
	// for the duration of the run (e.g. ":9108").
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// NoChangeMarkers are stdout phrases marking a package command as a
	// no-op. Defaults match yum's wording.
	NoChangeMarkers []string `mapstructure:"no_change_markers" yaml:"no_change_markers"`

	SSH      SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	Commands CommandsConfig `mapstructure:"commands" yaml:"commands"`
}

// SSHConfig holds settings for the remote command executor.
type SSHConfig struct {
	// User is the SSH login user. Default "root".
	User string `mapstructure:"user" yaml:"user"`

	// Port is the SSH port. Default 22.
	Port int `mapstructure:"port" yaml:"port"`

	// KeyPath points at a PEM private key. When empty, Password is used.
	KeyPath string `mapstructure:"key_path" yaml:"key_path"`

	// Password is an optional SSH password.
	Password string `mapstructure:"password" yaml:"password"`
}

// CommandsConfig holds the shell commands run on nodes. The defaults target
// yum/systemd hosts; every command is overridable.
type CommandsConfig struct {
	ServiceStop   string `mapstructure:"service_stop" yaml:"service_stop"`
	ServiceStart  string `mapstructure:"service_start" yaml:"service_start"`
	Upgrade       string `mapstructure:"upgrade" yaml:"upgrade"`
	LatestVersion string `mapstructure:"latest_version" yaml:"latest_version"`
	UpgradeSystem string `mapstructure:"upgrade_system" yaml:"upgrade_system"`
	Reboot        string `mapstructure:"reboot" yaml:"reboot"`
}

// Default returns a configuration populated with every default value.
func Default() *Config {
	return &Config{
		Port:                defaultPort,
		Version:             VersionLatest,
		PollIntervalSeconds: defaultPollInterval,
		SSH: SSHConfig{
			User: defaultSSHUser,
			Port: defaultSSHPort,
		},
		Commands: CommandsConfig{
			ServiceStop:  "sudo systemctl stop elasticsearch",
			ServiceStart: "sudo systemctl start elasticsearch",
			Upgrade:      "sudo yum clean all && sudo yum install -y elasticsearch",
			LatestVersion: "sudo yum clean all >/dev/null 2>&1 && yum list all elasticsearch |" +
				" grep elasticsearch | awk '{ print $2 }' | cut -d '-' -f1 |" +
				" sort --version-sort -r | head -n 1",
			UpgradeSystem: "sudo yum clean all && sudo yum update -y",
			Reboot:        "sudo /sbin/reboot",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	for _, node := range c.Nodes {
		if node == "" {
			return fmt.Errorf("node names cannot be empty")
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh port %d is out of range", c.SSH.Port)
	}

	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("password requires a username")
	}

	if c.Version != "" && c.Version != VersionLatest {
		if _, err := esversion.Parse(c.Version); err != nil {
			return fmt.Errorf("version must be %q or a full major.minor.patch triple: %w", VersionLatest, err)
		}
	}

	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll interval must be at least 1 second")
	}
	if c.MaxWaitAttempts < 0 {
		return fmt.Errorf("max wait attempts cannot be negative")
	}

	commands := map[string]string{
		"service_stop":   c.Commands.ServiceStop,
		"service_start":  c.Commands.ServiceStart,
		"upgrade":        c.Commands.Upgrade,
		"latest_version": c.Commands.LatestVersion,
		"upgrade_system": c.Commands.UpgradeSystem,
		"reboot":         c.Commands.Reboot,
	}
	for name, cmd := range commands {
		if cmd == "" {
			return fmt.Errorf("command %q cannot be empty", name)
		}
	}

	return nil
}

// Package handlers contains the business logic for CLI commands.
//
// Handlers are called by the command definitions in the commands package and
// wire configuration, platform clients and the rollout orchestrator together.
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/esctl/esroll/internal/config"
	"github.com/esctl/esroll/internal/platform/elastic"
	"github.com/esctl/esroll/internal/platform/remote"
	"github.com/esctl/esroll/internal/rollout"
)

// UpgradeOptions contains options for the upgrade command. One field per
// flag; Changed names the flags the user passed explicitly so that only
// those override values loaded from a config file.
type UpgradeOptions struct {
	ConfigPath string

	Nodes              string
	Port               int
	SSL                bool
	InsecureSkipVerify bool
	Username           string
	Password           string
	TargetVersion      string

	ServiceStopCommand   string
	ServiceStartCommand  string
	UpgradeCommand       string
	LatestVersionCommand string
	UpgradeSystemCommand string
	RebootCommand        string

	UpgradeSystem bool
	Reboot        bool
	ForceReboot   bool

	SSHUser    string
	SSHPort    int
	SSHKeyPath string

	PollInterval    int
	MaxWaitAttempts int
	MetricsAddr     string
	Verbose         bool

	Changed map[string]bool
}

// Upgrade handles the upgrade command.
//
// It assembles the effective configuration from defaults, an optional config
// file and explicit flags, connects the Elasticsearch and SSH clients, and
// runs the rolling upgrade. The summary is printed even when the run fails
// partway, so the operator can see which nodes were already processed.
func Upgrade(ctx context.Context, opts UpgradeOptions) error {
	cfg, err := buildUpgradeConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	api := elastic.NewClient(elastic.Config{
		Port:               cfg.Port,
		TLS:                cfg.SSL,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Credentials: elastic.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})

	runner, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	observer := rollout.NewConsoleObserver(cfg.Verbose)
	metrics := rollout.NewMetrics()

	stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
	defer stopMetrics()

	orch := rollout.NewOrchestrator(rollout.Config{
		Nodes:         cfg.Nodes,
		TargetVersion: cfg.Version,
		UpgradeSystem: cfg.UpgradeSystem,
		Reboot:        cfg.Reboot,
		ForceReboot:   cfg.ForceReboot,
		Commands: rollout.Commands{
			ServiceStop:   cfg.Commands.ServiceStop,
			ServiceStart:  cfg.Commands.ServiceStart,
			Upgrade:       cfg.Commands.Upgrade,
			LatestVersion: cfg.Commands.LatestVersion,
			UpgradeSystem: cfg.Commands.UpgradeSystem,
			Reboot:        cfg.Commands.Reboot,
		},
		PollInterval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MaxWaitAttempts: cfg.MaxWaitAttempts,
	}, api, runner, observer, metrics)

	summary, runErr := orch.Run(ctx)
	fmt.Print(renderRunSummary(summary))

	if runErr != nil {
		return fmt.Errorf("rolling upgrade failed: %w", runErr)
	}
	return nil
}

// buildUpgradeConfig assembles the effective configuration. Without a config
// file every flag value applies as-is (flag defaults mirror config defaults).
// With a config file, the file provides the base and only explicitly passed
// flags override it.
func buildUpgradeConfig(opts UpgradeOptions) (*config.Config, error) {
	var cfg *config.Config
	fromFile := opts.ConfigPath != ""

	if fromFile {
		loaded, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	apply := func(flag string, set func()) {
		if !fromFile || opts.Changed[flag] {
			set()
		}
	}

	apply("nodes", func() { cfg.Nodes = config.ParseNodeList(opts.Nodes) })
	apply("port", func() { cfg.Port = opts.Port })
	apply("ssl", func() { cfg.SSL = opts.SSL })
	apply("insecure-skip-verify", func() { cfg.InsecureSkipVerify = opts.InsecureSkipVerify })
	apply("username", func() { cfg.Username = opts.Username })
	apply("password", func() { cfg.Password = opts.Password })
	apply("target-version", func() { cfg.Version = opts.TargetVersion })
	apply("service-stop-command", func() { cfg.Commands.ServiceStop = opts.ServiceStopCommand })
	apply("service-start-command", func() { cfg.Commands.ServiceStart = opts.ServiceStartCommand })
	apply("upgrade-command", func() { cfg.Commands.Upgrade = opts.UpgradeCommand })
	apply("latest-version-command", func() { cfg.Commands.LatestVersion = opts.LatestVersionCommand })
	apply("upgrade-system-command", func() { cfg.Commands.UpgradeSystem = opts.UpgradeSystemCommand })
	apply("reboot-command", func() { cfg.Commands.Reboot = opts.RebootCommand })
	apply("upgrade-system", func() { cfg.UpgradeSystem = opts.UpgradeSystem })
	apply("reboot", func() { cfg.Reboot = opts.Reboot })
	apply("force-reboot", func() { cfg.ForceReboot = opts.ForceReboot })
	apply("ssh-user", func() { cfg.SSH.User = opts.SSHUser })
	apply("ssh-port", func() { cfg.SSH.Port = opts.SSHPort })
	apply("ssh-key", func() { cfg.SSH.KeyPath = opts.SSHKeyPath })
	apply("poll-interval", func() { cfg.PollIntervalSeconds = opts.PollInterval })
	apply("max-wait-attempts", func() { cfg.MaxWaitAttempts = opts.MaxWaitAttempts })
	apply("metrics-addr", func() { cfg.MetricsAddr = opts.MetricsAddr })
	apply("verbose", func() { cfg.Verbose = opts.Verbose })

	return cfg, nil
}

// buildRunner creates the SSH executor from the resolved configuration.
func buildRunner(cfg *config.Config) (remote.Runner, error) {
	remoteCfg := &remote.Config{
		User:            cfg.SSH.User,
		Port:            cfg.SSH.Port,
		Password:        cfg.SSH.Password,
		NoChangeMarkers: cfg.NoChangeMarkers,
	}

	if cfg.SSH.KeyPath != "" {
		// #nosec G304
		key, err := os.ReadFile(cfg.SSH.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		remoteCfg.PrivateKey = key
	}

	runner, err := remote.NewSSHExecutor(remoteCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up SSH: %w", err)
	}
	return runner, nil
}

// serveMetrics starts a metrics HTTP server when an address is configured.
// The returned function shuts the server down and is safe to call either way.
func serveMetrics(addr string, metrics *rollout.Metrics) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server on %s: %v", addr, err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

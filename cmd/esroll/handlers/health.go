package handlers

import (
	"context"
	"fmt"

	"github.com/esctl/esroll/internal/config"
	"github.com/esctl/esroll/internal/platform/elastic"
)

// HealthOptions contains options for the health command.
type HealthOptions struct {
	ConfigPath string

	Nodes              string
	Port               int
	SSL                bool
	InsecureSkipVerify bool
	Username           string
	Password           string

	Changed map[string]bool
}

// Health handles the health command.
//
// It queries cluster health through the first configured node, prints the
// status, and returns an error unless the cluster is green. This mirrors the
// gate the upgrade command applies before touching any node.
func Health(ctx context.Context, opts HealthOptions) error {
	cfg, err := buildHealthConfig(opts)
	if err != nil {
		return err
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
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

	health, err := api.Health(ctx, cfg.Nodes[0])
	if err != nil {
		return fmt.Errorf("cluster health check failed: %w", err)
	}

	fmt.Printf("cluster health: %s\n", health)

	if health != elastic.HealthGreen {
		return fmt.Errorf("cluster health is %s, not green", health)
	}
	return nil
}

// buildHealthConfig assembles the effective configuration for the health
// command, following the same flag-over-file precedence as the upgrade
// command.
func buildHealthConfig(opts HealthOptions) (*config.Config, error) {
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

	return cfg, nil
}

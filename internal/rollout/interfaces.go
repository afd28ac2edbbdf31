// Package rollout implements the cluster-health-gated rolling upgrade: a
// per-node upgrade state machine driven by a strictly sequential orchestrator
// that keeps at most one node out of service at any time.
package rollout

import (
	"context"

	"github.com/esctl/esroll/internal/platform/elastic"
)

// ClusterAPI is the Elasticsearch API surface the rollout consumes.
// Implemented by internal/platform/elastic.Client.
type ClusterAPI interface {
	// NodeVersion returns the Elasticsearch version the node reports.
	NodeVersion(ctx context.Context, host string) (string, error)

	// SetAllocation sets the cluster-wide shard allocation mode via the node.
	SetAllocation(ctx context.Context, host string, mode elastic.AllocationMode) error

	// SyncedFlush requests a best-effort synced flush via the node.
	SyncedFlush(ctx context.Context, host string) error

	// ListNodes returns the plain-text cluster node listing.
	ListNodes(ctx context.Context, host string) (string, error)

	// Health returns the cluster health as seen from the node.
	Health(ctx context.Context, host string) (elastic.Health, error)
}

// Commands holds the shell command strings run on nodes over the remote
// executor. None of them are hard-coded; defaults live in internal/config.
type Commands struct {
	ServiceStop   string
	ServiceStart  string
	Upgrade       string
	LatestVersion string
	UpgradeSystem string
	Reboot        string
}

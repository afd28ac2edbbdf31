package rollout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/esctl/esroll/internal/esversion"
	"github.com/esctl/esroll/internal/platform/elastic"
	"github.com/esctl/esroll/internal/platform/remote"
)

// Config holds the per-run orchestration settings.
type Config struct {
	// Nodes are the cluster members in upgrade order.
	Nodes []string

	// TargetVersion is a literal version, the sentinel "latest", or empty to
	// upgrade every node without version filtering.
	TargetVersion string

	// UpgradeSystem also upgrades the host operating system on each node.
	UpgradeSystem bool

	// Reboot reboots a node when an actual software or OS change occurred.
	Reboot bool

	// ForceReboot reboots every node regardless of detected changes.
	ForceReboot bool

	Commands Commands

	// PollInterval is the delay between wait-loop attempts. Zero uses the
	// waiter default of 5s.
	PollInterval time.Duration

	// MaxWaitAttempts bounds the wait loops. Zero polls indefinitely, which
	// is the default behavior.
	MaxWaitAttempts int
}

// Orchestrator drives the rolling upgrade: it resolves the target version
// once, refuses to start against an unhealthy cluster, and walks the node
// list strictly in order, aborting on the first failure so that never more
// than one node is in an inconsistent state.
type Orchestrator struct {
	cfg      Config
	api      ClusterAPI
	runner   remote.Runner
	observer Observer
	metrics  *Metrics

	// target is resolved exactly once per run and held fixed afterwards.
	target    esversion.Version
	hasTarget bool
}

// NewOrchestrator creates a rolling upgrade orchestrator. A nil observer
// falls back to console logging; metrics may be nil.
func NewOrchestrator(cfg Config, api ClusterAPI, runner remote.Runner, observer Observer, metrics *Metrics) *Orchestrator {
	if observer == nil {
		observer = NewConsoleObserver(false)
	}
	return &Orchestrator{
		cfg:      cfg,
		api:      api,
		runner:   runner,
		observer: observer,
		metrics:  metrics,
	}
}

// Run performs the rolling upgrade. The returned summary is populated even
// when the run fails, so callers can report partial progress.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}

	fail := func(err error) (*RunSummary, error) {
		summary.Duration = time.Since(start)
		o.metrics.runFinished(summary.Duration, false)
		o.observer.Event(Event{Type: EventRunFailed, Message: err.Error()})
		return summary, err
	}

	if len(o.cfg.Nodes) == 0 {
		return fail(fmt.Errorf("no nodes to upgrade"))
	}

	o.observer.Event(Event{
		Type:    EventRunStarted,
		Message: fmt.Sprintf("rolling upgrade of %d nodes", len(o.cfg.Nodes)),
	})

	if err := o.resolveTarget(ctx); err != nil {
		return fail(err)
	}
	summary.Target = o.target

	if err := o.healthGate(ctx); err != nil {
		return fail(err)
	}

	for _, node := range o.cfg.Nodes {
		o.observer.Event(Event{Type: EventNodeStarted, Node: node})

		outcome := o.processNode(ctx, node)
		summary.Outcomes = append(summary.Outcomes, outcome)
		o.metrics.nodeProcessed(outcome.Kind)

		if outcome.Kind == OutcomeFailed {
			o.observer.Event(Event{Type: EventNodeFailed, Node: node, Message: outcome.Err.Error()})
			return fail(fmt.Errorf("node %s: %w", node, outcome.Err))
		}

		o.observer.Event(Event{
			Type:    EventNodeCompleted,
			Node:    node,
			Message: string(outcome.Kind),
		})
	}

	summary.Succeeded = true
	summary.Duration = time.Since(start)
	o.metrics.runFinished(summary.Duration, true)
	o.observer.Event(Event{
		Type:    EventRunCompleted,
		Message: fmt.Sprintf("all %d nodes upgraded successfully", len(o.cfg.Nodes)),
	})

	return summary, nil
}

// resolveTarget turns the configured target into a concrete version, exactly
// once per run. The "latest" sentinel is resolved by running the configured
// latest-version command on the first node.
func (o *Orchestrator) resolveTarget(ctx context.Context) error {
	switch o.cfg.TargetVersion {
	case "":
		return nil

	case "latest":
		o.observer.Printf("Determining the latest available version")

		result, err := o.runner.Run(ctx, o.cfg.Nodes[0], o.cfg.Commands.LatestVersion)
		if err != nil {
			return fmt.Errorf("determine latest version on %s: %w", o.cfg.Nodes[0], err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("determine latest version on %s: exit code %d: %s",
				o.cfg.Nodes[0], result.ExitCode, strings.TrimSpace(result.Stderr))
		}

		version, err := esversion.Parse(strings.TrimSpace(result.Stdout))
		if err != nil {
			return fmt.Errorf("determine latest version: %w", err)
		}
		if version.IsZero() {
			return fmt.Errorf("determine latest version: command reported no positive version")
		}

		o.target = version
		o.hasTarget = true
		o.observer.Printf("Using latest version %s as the version to upgrade to", version)
		return nil

	default:
		version, err := esversion.Parse(o.cfg.TargetVersion)
		if err != nil {
			return fmt.Errorf("invalid target version: %w", err)
		}
		o.target = version
		o.hasTarget = true
		return nil
	}
}

// healthGate refuses to start a rolling operation against a cluster that is
// not fully healthy. Nothing has been mutated at this point.
func (o *Orchestrator) healthGate(ctx context.Context) error {
	o.observer.Printf("Checking that cluster status is green before starting")

	health, err := o.api.Health(ctx, o.cfg.Nodes[0])
	if health != elastic.HealthGreen {
		if err != nil {
			return fmt.Errorf("refusing to start: cluster health is %s: %w", health, err)
		}
		return fmt.Errorf("refusing to start: cluster health is %s, not green", health)
	}

	return nil
}

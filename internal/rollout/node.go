package rollout

import (
	"context"
	"fmt"
	"strings"

	"github.com/esctl/esroll/internal/esversion"
	"github.com/esctl/esroll/internal/platform/elastic"
	"github.com/esctl/esroll/internal/platform/remote"
	"github.com/esctl/esroll/internal/util/wait"
)

// nodeRun carries the state of one node's upgrade sequence. A fresh value is
// built for every node so change flags can never leak across node boundaries.
type nodeRun struct {
	orch *Orchestrator
	node string

	target    esversion.Version
	hasTarget bool

	softwareChanged bool
	osChanged       bool
	upgraded        bool
	rebooted        bool
}

// process runs the full per-node sequence and returns its outcome.
func (o *Orchestrator) processNode(ctx context.Context, node string) NodeOutcome {
	r := &nodeRun{
		orch:      o,
		node:      node,
		target:    o.target,
		hasTarget: o.hasTarget,
	}

	if err := r.run(ctx); err != nil {
		return NodeOutcome{
			Node:            node,
			Kind:            OutcomeFailed,
			SoftwareChanged: r.softwareChanged,
			OSChanged:       r.osChanged,
			Err:             err,
		}
	}

	kind := OutcomeSkipped
	switch {
	case r.rebooted:
		kind = OutcomeRebooted
	case r.upgraded:
		kind = OutcomeUpgraded
	}

	return NodeOutcome{
		Node:            node,
		Kind:            kind,
		SoftwareChanged: r.softwareChanged,
		OSChanged:       r.osChanged,
	}
}

func (r *nodeRun) run(ctx context.Context) error {
	if r.hasTarget {
		lower, err := r.currentVersionLower(ctx)
		if err != nil {
			return err
		}

		if !lower {
			// The node's software is already up to date. An OS upgrade may
			// still be requested, and that can warrant a reboot-only pass.
			if r.orch.cfg.UpgradeSystem {
				if err := r.upgradeOS(ctx); err != nil {
					return err
				}
			}

			if !r.rebootWarranted() {
				return nil
			}

			if err := r.disableAllocation(ctx); err != nil {
				return err
			}
			r.syncedFlush(ctx)
			r.reboot(ctx)
		}
	}

	if !r.rebooted {
		if err := r.disableAllocation(ctx); err != nil {
			return err
		}
		r.syncedFlush(ctx)

		if err := r.stopService(ctx); err != nil {
			return err
		}
		if err := r.upgradeSoftware(ctx); err != nil {
			return err
		}
		if r.orch.cfg.UpgradeSystem {
			if err := r.upgradeOS(ctx); err != nil {
				return err
			}
		}

		if r.rebootWarranted() {
			r.reboot(ctx)
		} else if err := r.startService(ctx); err != nil {
			// The reboot path starts the service implicitly, so an explicit
			// start only happens when no reboot was issued.
			return err
		}
	}

	if err := r.waitJoined(ctx); err != nil {
		return err
	}
	if err := r.enableAllocation(ctx); err != nil {
		return err
	}
	return r.waitGreen(ctx)
}

// rebootWarranted applies the reboot gating rule: force-reboot always wins,
// plain reboot requires a detected software or OS change.
func (r *nodeRun) rebootWarranted() bool {
	if r.orch.cfg.ForceReboot {
		return true
	}
	return r.orch.cfg.Reboot && (r.softwareChanged || r.osChanged)
}

// currentVersionLower checks whether the node's current version is lower than
// the target. A version string the node reports but that does not parse is
// treated as up to date, with a warning; only transport failures are fatal.
func (r *nodeRun) currentVersionLower(ctx context.Context) (bool, error) {
	current, err := r.orch.api.NodeVersion(ctx, r.node)
	if err != nil {
		return false, fmt.Errorf("determine current version of %s: %w", r.node, err)
	}

	parsed, err := esversion.Parse(current)
	if err != nil {
		r.orch.observer.Event(Event{
			Type:    EventStepWarning,
			Node:    r.node,
			Step:    "check-version",
			Message: fmt.Sprintf("cannot interpret reported version %q, treating node as up to date", current),
		})
		return false, nil
	}

	switch parsed.Compare(r.target) {
	case 0:
		r.orch.observer.Printf("Node %s already at version %s, skipping software upgrade", r.node, parsed)
		return false, nil
	case 1:
		r.orch.observer.Printf("Node %s runs %s, higher than target %s, skipping software upgrade", r.node, parsed, r.target)
		return false, nil
	default:
		r.orch.observer.Printf("Node %s runs %s, lower than target %s", r.node, parsed, r.target)
		return true, nil
	}
}

func (r *nodeRun) disableAllocation(ctx context.Context) error {
	r.stepStarted("disable-allocation", "disabling shard allocation")
	if err := r.orch.api.SetAllocation(ctx, r.node, elastic.AllocationNone); err != nil {
		return fmt.Errorf("disable shard allocation: %w", err)
	}
	return nil
}

func (r *nodeRun) enableAllocation(ctx context.Context) error {
	r.stepStarted("enable-allocation", "re-enabling shard allocation")
	if err := r.orch.api.SetAllocation(ctx, r.node, elastic.AllocationAll); err != nil {
		return fmt.Errorf("re-enable shard allocation: %w", err)
	}
	return nil
}

// syncedFlush is best-effort: a failed flush only slows shard recovery.
func (r *nodeRun) syncedFlush(ctx context.Context) {
	r.stepStarted("synced-flush", "performing a synced flush")
	if err := r.orch.api.SyncedFlush(ctx, r.node); err != nil {
		r.orch.observer.Event(Event{
			Type:    EventStepWarning,
			Node:    r.node,
			Step:    "synced-flush",
			Message: err.Error(),
		})
	}
}

func (r *nodeRun) stopService(ctx context.Context) error {
	r.stepStarted("stop-service", "stopping the Elasticsearch service")
	_, err := r.runCommand(ctx, "stop service", r.orch.cfg.Commands.ServiceStop)
	return err
}

func (r *nodeRun) startService(ctx context.Context) error {
	r.stepStarted("start-service", "starting the Elasticsearch service")
	_, err := r.runCommand(ctx, "start service", r.orch.cfg.Commands.ServiceStart)
	return err
}

func (r *nodeRun) upgradeSoftware(ctx context.Context) error {
	r.stepStarted("upgrade", "upgrading the Elasticsearch software")
	result, err := r.runCommand(ctx, "upgrade", r.orch.cfg.Commands.Upgrade)
	if err != nil {
		return err
	}

	r.upgraded = true
	r.softwareChanged = result.Changed
	if !result.Changed {
		r.orch.observer.Printf("Node %s: no Elasticsearch package updates were available", r.node)
	}
	return nil
}

func (r *nodeRun) upgradeOS(ctx context.Context) error {
	r.stepStarted("upgrade-os", "upgrading the operating system")
	result, err := r.runCommand(ctx, "upgrade operating system", r.orch.cfg.Commands.UpgradeSystem)
	if err != nil {
		return err
	}

	r.osChanged = result.Changed
	if !result.Changed {
		r.orch.observer.Printf("Node %s: no operating system updates were available", r.node)
	}
	return nil
}

// reboot issues the reboot command. The SSH connection is torn down by the
// reboot itself, so the result is ignored entirely.
func (r *nodeRun) reboot(ctx context.Context) {
	r.stepStarted("reboot", "rebooting")
	r.rebooted = true
	_, _ = r.orch.runner.Run(ctx, r.node, r.orch.cfg.Commands.Reboot)
}

// waitJoined blocks until the node identifier appears in the cluster's node
// listing. Connectivity failures mean "not yet".
func (r *nodeRun) waitJoined(ctx context.Context) error {
	r.stepStarted("wait-join", "waiting until the node joins the cluster")

	err := wait.Until(ctx, func(ctx context.Context) bool {
		listing, err := r.orch.api.ListNodes(ctx, r.node)
		return err == nil && strings.Contains(listing, r.node)
	}, r.waitOptions("wait-join")...)
	if err != nil {
		return fmt.Errorf("node %s did not rejoin the cluster: %w", r.node, err)
	}

	return nil
}

// waitGreen blocks until cluster health reports green.
func (r *nodeRun) waitGreen(ctx context.Context) error {
	r.stepStarted("wait-green", "waiting until cluster status is green")

	err := wait.Until(ctx, func(ctx context.Context) bool {
		health, _ := r.orch.api.Health(ctx, r.node)
		return health == elastic.HealthGreen
	}, r.waitOptions("wait-green")...)
	if err != nil {
		return fmt.Errorf("cluster did not return to green after %s: %w", r.node, err)
	}

	return nil
}

func (r *nodeRun) waitOptions(phase string) []wait.Option {
	o := r.orch
	return []wait.Option{
		wait.WithInterval(o.cfg.PollInterval),
		wait.WithMaxAttempts(o.cfg.MaxWaitAttempts),
		wait.WithProgress(func(attempt int) {
			o.observer.Progress(phase, attempt, o.cfg.MaxWaitAttempts)
			o.metrics.pollAttempt(phase)
		}),
	}
}

// runCommand executes a remote command and fails on transport errors and
// non-zero exit codes alike.
func (r *nodeRun) runCommand(ctx context.Context, what, command string) (remote.Result, error) {
	result, err := r.orch.runner.Run(ctx, r.node, command)
	if err != nil {
		return result, fmt.Errorf("%s on %s: %w", what, r.node, err)
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("%s on %s: exit code %d: %s",
			what, r.node, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result, nil
}

func (r *nodeRun) stepStarted(step, message string) {
	r.orch.observer.Event(Event{
		Type:    EventStepStarted,
		Node:    r.node,
		Step:    step,
		Message: message,
	})
}

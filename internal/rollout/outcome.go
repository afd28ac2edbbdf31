package rollout

import (
	"time"

	"github.com/esctl/esroll/internal/esversion"
)

// OutcomeKind classifies how a node's processing ended.
type OutcomeKind string

const (
	// OutcomeSkipped means the node was already at or above the target
	// version and no reboot was warranted.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeUpgraded means the software upgrade sequence ran without a reboot.
	OutcomeUpgraded OutcomeKind = "upgraded"
	// OutcomeRebooted means the node was rebooted, with or without a
	// preceding software upgrade.
	OutcomeRebooted OutcomeKind = "upgraded-and-rebooted"
	// OutcomeFailed means a required step failed and the run aborted.
	OutcomeFailed OutcomeKind = "failed"
)

// NodeOutcome records how one node fared.
type NodeOutcome struct {
	Node string
	Kind OutcomeKind

	// SoftwareChanged reports whether the upgrade command installed anything.
	SoftwareChanged bool
	// OSChanged reports whether the OS upgrade command installed anything.
	OSChanged bool

	// Err holds the failure reason when Kind is OutcomeFailed.
	Err error
}

// RunSummary is the ordered record of a whole run.
type RunSummary struct {
	// Target is the resolved target version. Zero when no version filtering
	// was requested.
	Target esversion.Version

	// Outcomes holds one entry per node in upgrade order, truncated at the
	// first failure.
	Outcomes []NodeOutcome

	Succeeded bool
	Duration  time.Duration
}

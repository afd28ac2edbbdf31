package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/esctl/esroll/internal/esversion"
	"github.com/esctl/esroll/internal/rollout"
)

// Test output is never a terminal, so rendering degrades to plain text and
// the assertions can match on content directly.

func TestRenderRunSummary(t *testing.T) {
	summary := &rollout.RunSummary{
		Target: esversion.MustParse("5.4.0"),
		Outcomes: []rollout.NodeOutcome{
			{Node: "es1.internal", Kind: rollout.OutcomeSkipped},
			{Node: "es2.internal", Kind: rollout.OutcomeUpgraded, SoftwareChanged: true},
			{Node: "es3.internal", Kind: rollout.OutcomeRebooted, SoftwareChanged: true, OSChanged: true},
		},
		Succeeded: true,
		Duration:  83 * time.Second,
	}

	out := renderRunSummary(summary)

	assert.Contains(t, out, "esroll summary (target 5.4.0)")
	assert.Contains(t, out, "es1.internal")
	assert.Contains(t, out, "already up to date")
	assert.Contains(t, out, "upgraded and rebooted")
	assert.Contains(t, out, "OS updated")
	assert.Contains(t, out, "3 nodes processed, succeeded in 1m23s")
}

func TestRenderRunSummary_Failure(t *testing.T) {
	summary := &rollout.RunSummary{
		Outcomes: []rollout.NodeOutcome{
			{Node: "es1.internal", Kind: rollout.OutcomeUpgraded, SoftwareChanged: true},
			{Node: "es2.internal", Kind: rollout.OutcomeFailed, Err: errors.New("service did not stop")},
		},
		Duration: 40 * time.Second,
	}

	out := renderRunSummary(summary)

	assert.Contains(t, out, "esroll summary")
	assert.NotContains(t, out, "target")
	assert.Contains(t, out, "service did not stop")
	assert.Contains(t, out, "2 nodes processed, failed in 40s")
}

func TestRenderRunSummary_Nil(t *testing.T) {
	assert.Empty(t, renderRunSummary(nil))
}

func TestRenderRunSummary_NoOutcomes(t *testing.T) {
	out := renderRunSummary(&rollout.RunSummary{})
	assert.Contains(t, out, "0 nodes processed")
}

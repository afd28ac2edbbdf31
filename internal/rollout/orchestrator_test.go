package rollout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esctl/esroll/internal/esversion"
	"github.com/esctl/esroll/internal/platform/elastic"
	"github.com/esctl/esroll/internal/platform/remote"
	"github.com/esctl/esroll/internal/util/wait"
)

// fakeCluster is a scripted ClusterAPI that records every call in order.
type fakeCluster struct {
	calls *[]string

	versions   map[string]string
	versionErr error

	healthSeq []elastic.Health
	healthPos int

	listing  string
	allocErr map[elastic.AllocationMode]error
	flushErr error
}

func (f *fakeCluster) record(format string, v ...any) {
	*f.calls = append(*f.calls, fmt.Sprintf(format, v...))
}

func (f *fakeCluster) NodeVersion(_ context.Context, host string) (string, error) {
	f.record("version %s", host)
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return f.versions[host], nil
}

func (f *fakeCluster) SetAllocation(_ context.Context, host string, mode elastic.AllocationMode) error {
	f.record("allocation-%s %s", mode, host)
	return f.allocErr[mode]
}

func (f *fakeCluster) SyncedFlush(_ context.Context, host string) error {
	f.record("flush %s", host)
	return f.flushErr
}

func (f *fakeCluster) ListNodes(_ context.Context, host string) (string, error) {
	f.record("list-nodes %s", host)
	return f.listing, nil
}

func (f *fakeCluster) Health(_ context.Context, host string) (elastic.Health, error) {
	f.record("health %s", host)

	health := elastic.HealthGreen
	if len(f.healthSeq) > 0 {
		if f.healthPos < len(f.healthSeq) {
			health = f.healthSeq[f.healthPos]
			f.healthPos++
		} else {
			health = f.healthSeq[len(f.healthSeq)-1]
		}
	}

	if health == elastic.HealthUnknown {
		return health, errors.New("connection refused")
	}
	return health, nil
}

// fakeRunner is a scripted remote.Runner keyed by command string, with an
// optional per-host override keyed by "command host".
type fakeRunner struct {
	calls         *[]string
	results       map[string]remote.Result
	resultsByHost map[string]remote.Result
	errs          map[string]error
}

func (f *fakeRunner) Run(_ context.Context, host, command string) (remote.Result, error) {
	*f.calls = append(*f.calls, fmt.Sprintf("run %s %s", command, host))
	if err := f.errs[command]; err != nil {
		return remote.Result{}, err
	}
	if result, ok := f.resultsByHost[command+" "+host]; ok {
		return result, nil
	}
	return f.results[command], nil
}

var testCommands = Commands{
	ServiceStop:   "stop",
	ServiceStart:  "start",
	Upgrade:       "upgrade",
	LatestVersion: "latest-version",
	UpgradeSystem: "os-upgrade",
	Reboot:        "reboot",
}

// harness wires the fakes into an orchestrator with a shared call recorder.
type harness struct {
	calls   []string
	cluster *fakeCluster
	runner  *fakeRunner
}

func newHarness(nodes ...string) *harness {
	h := &harness{}
	h.cluster = &fakeCluster{
		calls:    &h.calls,
		versions: map[string]string{},
		allocErr: map[elastic.AllocationMode]error{},
	}
	h.runner = &fakeRunner{
		calls:   &h.calls,
		results: map[string]remote.Result{},
		errs:    map[string]error{},
	}
	for _, n := range nodes {
		h.cluster.listing += "10.0.0.1 50 99 1 0.1 0.1 0.1 mdi - " + n + "\n"
	}
	return h
}

func (h *harness) orchestrator(cfg Config) *Orchestrator {
	if cfg.Commands == (Commands{}) {
		cfg.Commands = testCommands
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	return NewOrchestrator(cfg, h.cluster, h.runner, NewConsoleObserver(false), nil)
}

func TestRun_FullUpgradeSequenceTwoNodes(t *testing.T) {
	h := newHarness("n1", "n2")
	h.cluster.versions["n1"] = "5.3.0"
	h.cluster.versions["n2"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{Changed: true}

	o := h.orchestrator(Config{
		Nodes:         []string{"n1", "n2"},
		TargetVersion: "5.4.0",
	})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded)
	assert.Equal(t, esversion.MustParse("5.4.0"), summary.Target)

	require.Len(t, summary.Outcomes, 2)
	for i, node := range []string{"n1", "n2"} {
		assert.Equal(t, node, summary.Outcomes[i].Node)
		assert.Equal(t, OutcomeUpgraded, summary.Outcomes[i].Kind)
		assert.True(t, summary.Outcomes[i].SoftwareChanged)
	}

	perNode := func(n string) []string {
		return []string{
			"version " + n,
			"allocation-none " + n,
			"flush " + n,
			"run stop " + n,
			"run upgrade " + n,
			"run start " + n,
			"list-nodes " + n,
			"allocation-all " + n,
			"health " + n,
		}
	}
	expected := append([]string{"health n1"}, perNode("n1")...)
	expected = append(expected, perNode("n2")...)
	assert.Equal(t, expected, h.calls)
}

func TestRun_SkipWhenAlreadyAtTarget(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.4.0"

	o := h.orchestrator(Config{
		Nodes:         []string{"n1"},
		TargetVersion: "5.4.0",
	})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, OutcomeSkipped, summary.Outcomes[0].Kind)
	assert.False(t, summary.Outcomes[0].SoftwareChanged)

	// Zero mutating calls: the only traffic is the health gate and the
	// version query.
	assert.Equal(t, []string{"health n1", "version n1"}, h.calls)
}

func TestRun_SkipWhenCurrentVersionHigher(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.5.0"

	o := h.orchestrator(Config{
		Nodes:         []string{"n1"},
		TargetVersion: "5.4.0",
	})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, summary.Outcomes[0].Kind)
	assert.Equal(t, []string{"health n1", "version n1"}, h.calls)
}

func TestRun_HealthGateAbortsBeforeAnyNode(t *testing.T) {
	h := newHarness("n1", "n2")
	h.cluster.healthSeq = []elastic.Health{elastic.HealthRed}

	o := h.orchestrator(Config{
		Nodes:         []string{"n1", "n2"},
		TargetVersion: "5.4.0",
	})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster health is red")
	assert.False(t, summary.Succeeded)
	assert.Empty(t, summary.Outcomes)

	// No node was contacted for mutation: the one call is the health gate.
	assert.Equal(t, []string{"health n1"}, h.calls)
}

func TestRun_HealthGateUnknownAborts(t *testing.T) {
	h := newHarness("n1")
	h.cluster.healthSeq = []elastic.Health{elastic.HealthUnknown}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster health is unknown")
}

func TestRun_ResolvesLatestVersion(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.runner.results["latest-version"] = remote.Result{Stdout: "5.4.0\n", Changed: true}
	h.runner.results["upgrade"] = remote.Result{Changed: true}

	o := h.orchestrator(Config{
		Nodes:         []string{"n1"},
		TargetVersion: "latest",
	})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, esversion.MustParse("5.4.0"), summary.Target)
	// Resolution runs on the first node before anything else.
	assert.Equal(t, "run latest-version n1", h.calls[0])
}

func TestRun_LatestVersionUnparseable(t *testing.T) {
	h := newHarness("n1")
	h.runner.results["latest-version"] = remote.Result{Stdout: "no such package\n"}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "latest"})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "determine latest version")
	assert.False(t, summary.Succeeded)
	// Failure happens before the health gate and before any node mutation.
	assert.Equal(t, []string{"run latest-version n1"}, h.calls)
}

func TestRun_LatestVersionZeroRejected(t *testing.T) {
	h := newHarness("n1")
	h.runner.results["latest-version"] = remote.Result{Stdout: "0.0.0\n"}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "latest"})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no positive version")
}

func TestRun_LatestVersionCommandFails(t *testing.T) {
	h := newHarness("n1")
	h.runner.results["latest-version"] = remote.Result{ExitCode: 1, Stderr: "repo unreachable"}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "latest"})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 1")
}

func TestRun_InvalidLiteralTargetVersion(t *testing.T) {
	h := newHarness("n1")
	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4"})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target version")
}

func TestRun_NoTargetUpgradesUnconditionally(t *testing.T) {
	h := newHarness("n1")
	h.runner.results["upgrade"] = remote.Result{Changed: true}

	o := h.orchestrator(Config{Nodes: []string{"n1"}})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpgraded, summary.Outcomes[0].Kind)
	assert.True(t, summary.Target.IsZero())
	// No version query: the upgrade path starts straight away.
	assert.NotContains(t, h.calls, "version n1")
	assert.Contains(t, h.calls, "run upgrade n1")
}

func TestRun_AbortsOnFirstNodeFailure(t *testing.T) {
	h := newHarness("n1", "n2")
	h.cluster.versions["n1"] = "5.3.0"
	h.cluster.versions["n2"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{Changed: true}
	h.runner.errs["stop"] = errors.New("ssh: connection reset")

	o := h.orchestrator(Config{
		Nodes:         []string{"n1", "n2"},
		TargetVersion: "5.4.0",
	})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node n1")
	assert.False(t, summary.Succeeded)

	// n1 failed, n2 was never attempted.
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, OutcomeFailed, summary.Outcomes[0].Kind)
	assert.NotContains(t, h.calls, "version n2")
}

func TestRun_NonZeroExitIsFatal(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{ExitCode: 1, Stderr: "yum failed"}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 1")
	assert.Contains(t, err.Error(), "yum failed")
	assert.Equal(t, OutcomeFailed, summary.Outcomes[0].Kind)
}

func TestRun_EnableAllocationFailureIsFatal(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{Changed: true}
	h.cluster.allocErr[elastic.AllocationAll] = errors.New("status 503")

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-enable shard allocation")
	assert.Equal(t, OutcomeFailed, summary.Outcomes[0].Kind)
}

func TestRun_SyncedFlushFailureIsNotFatal(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{Changed: true}
	h.cluster.flushErr = errors.New("status 409")

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded)
}

func TestRun_BoundedWaitExhaustion(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.cluster.listing = "some-other-node\n" // n1 never rejoins
	h.runner.results["upgrade"] = remote.Result{Changed: true}

	o := h.orchestrator(Config{
		Nodes:           []string{"n1"},
		TargetVersion:   "5.4.0",
		MaxWaitAttempts: 2,
	})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, wait.ErrExhausted)
	assert.Contains(t, err.Error(), "did not rejoin")
	assert.Equal(t, OutcomeFailed, summary.Outcomes[0].Kind)
}

func TestRun_WaitGreenPollsUntilGreen(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.3.0"
	h.runner.results["upgrade"] = remote.Result{Changed: true}
	// Gate green, then two yellow polls before green again.
	h.cluster.healthSeq = []elastic.Health{
		elastic.HealthGreen,
		elastic.HealthYellow,
		elastic.HealthYellow,
		elastic.HealthGreen,
	}

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded)

	healthCalls := 0
	for _, call := range h.calls {
		if call == "health n1" {
			healthCalls++
		}
	}
	assert.Equal(t, 4, healthCalls, "gate plus three wait-green polls")
}

func TestRun_NoNodes(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(Config{TargetVersion: "5.4.0"})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestRun_UnparseableNodeVersionSkipsSoftware(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "definitely not a version"

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, summary.Outcomes[0].Kind)
}

func TestRun_NodeVersionTransportFailureIsFatal(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versionErr = errors.New("connection refused")

	o := h.orchestrator(Config{Nodes: []string{"n1"}, TargetVersion: "5.4.0"})

	summary, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "determine current version")
	assert.Equal(t, OutcomeFailed, summary.Outcomes[0].Kind)
}

func TestRun_MetricsRecorded(t *testing.T) {
	h := newHarness("n1")
	h.cluster.versions["n1"] = "5.4.0"

	metrics := NewMetrics()
	cfg := Config{
		Nodes:         []string{"n1"},
		TargetVersion: "5.4.0",
		Commands:      testCommands,
		PollInterval:  time.Millisecond,
	}
	o := NewOrchestrator(cfg, h.cluster, h.runner, nil, metrics)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	// The handler must serve without panicking even before any scrape.
	assert.NotNil(t, metrics.Handler())
}

package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NCAR/ctt-server/internal/changelog"
	"github.com/NCAR/ctt-server/internal/mutation"
	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/storage/memory"
	"github.com/NCAR/ctt-server/internal/topology"
	"github.com/NCAR/ctt-server/internal/types"
)

// fakeScheduler is an in-memory scheduler.Adapter double driven directly
// by tests, mirroring the teacher's inline-mock-in-_test.go style (e.g.
// slackbot's mockSlackAPI) rather than a separate exported fake package.
type fakeScheduler struct {
	mu      sync.Mutex
	nodes   map[string]scheduler.NodeState
	offline []string
	release []string
}

func newFakeScheduler(names []string, status types.TargetStatus) *fakeScheduler {
	nodes := make(map[string]scheduler.NodeState, len(names))
	for _, n := range names {
		nodes[n] = scheduler.NodeState{Status: status}
	}
	return &fakeScheduler{nodes: nodes}
}

func (f *fakeScheduler) NodesStatus(context.Context) (map[string]scheduler.NodeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]scheduler.NodeState, len(f.nodes))
	for k, v := range f.nodes {
		out[k] = v
	}
	return out, nil
}

func (f *fakeScheduler) Offline(_ context.Context, name, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[name] = scheduler.NodeState{Status: types.StatusOffline, Comment: comment}
	f.offline = append(f.offline, name)
	return nil
}

func (f *fakeScheduler) Release(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[name] = scheduler.NodeState{Status: types.StatusOnline}
	f.release = append(f.release, name)
	return nil
}

func (f *fakeScheduler) setDown(name, comment string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[name] = scheduler.NodeState{Status: types.StatusDown, Comment: comment}
}

var _ scheduler.Adapter = (*fakeScheduler)(nil)

// gustTopology builds the {prefix:"gu", digits:4, first_num:1, last_num:18,
// card_size:2, blade_size:4} resolver used throughout spec.md §8's
// literal scenarios.
func gustTopology() topology.Resolver {
	digits, first, last, card, blade := 4, 1, 18, 2, 4
	return topology.NewRegexResolver([]topology.NodeType{{
		Prefix:    "gu",
		Digits:    &digits,
		FirstNum:  &first,
		LastNum:   &last,
		CardSize:  &card,
		BladeSize: &blade,
	}})
}

// recordingSink collects posted digests without exercising a real chat
// backend.
type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSink) Post(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

type testHarness struct {
	store   storage.Storage
	sched   *fakeScheduler
	topo    topology.Resolver
	mutator *mutation.Engine
	engine  *Engine
}

func newHarness(t *testing.T, names []string, initialStatus types.TargetStatus) *testHarness {
	t.Helper()
	store := memory.New()
	sched := newFakeScheduler(names, initialStatus)
	topo := gustTopology()
	events := changelog.New(&recordingSink{}, 10, time.Hour)
	mutator := mutation.New(store, topo, sched, events)
	engine := New(store, topo, sched, mutator, time.Hour, nil)
	return &testHarness{store: store, sched: sched, topo: topo, mutator: mutator, engine: engine}
}

func toOfflinePtr(v types.ToOffline) *types.ToOffline {
	return &v
}

func TestS1_OpenAndDrain(t *testing.T) {
	h := newHarness(t, []string{"gu0005", "gu0006"}, types.StatusOnline)
	ctx := context.Background()

	_, err := h.mutator.Open(ctx, mutation.NewIssue{Target: "gu0005", Title: "NIC flap", ToOffline: toOfflinePtr(types.ToOfflineCard)}, "alice")
	require.NoError(t, err)

	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	tgt5, err := h.store.GetTargetByName(ctx, "gu0005")
	require.NoError(t, err)
	require.Contains(t, []types.TargetStatus{types.StatusDraining, types.StatusOffline}, tgt5.Status)

	tgt6, err := h.store.GetTargetByName(ctx, "gu0006")
	require.NoError(t, err)
	require.Contains(t, []types.TargetStatus{types.StatusDraining, types.StatusOffline}, tgt6.Status)

	issues, err := h.store.FindIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, types.StatusIssueOpen, issues[0].Status)
}

func TestS2_CloseAndResume(t *testing.T) {
	h := newHarness(t, []string{"gu0005", "gu0006"}, types.StatusOnline)
	ctx := context.Background()

	issue, err := h.mutator.Open(ctx, mutation.NewIssue{Target: "gu0005", Title: "NIC flap", ToOffline: toOfflinePtr(types.ToOfflineCard)}, "alice")
	require.NoError(t, err)
	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	require.NoError(t, h.mutator.Close(ctx, issue.ID, "alice", "replaced cable"))
	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	tgt5, err := h.store.GetTargetByName(ctx, "gu0005")
	require.NoError(t, err)
	require.Equal(t, types.StatusOnline, tgt5.Status)

	tgt6, err := h.store.GetTargetByName(ctx, "gu0006")
	require.NoError(t, err)
	require.Equal(t, types.StatusOnline, tgt6.Status)

	closed, err := h.store.FindIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusIssueClosed, closed.Status)
}

func TestS3_NarrowScope(t *testing.T) {
	names := []string{"gu0009", "gu0010", "gu0011", "gu0012"}
	h := newHarness(t, names, types.StatusOnline)
	ctx := context.Background()

	issue, err := h.mutator.Open(ctx, mutation.NewIssue{Target: "gu0009", Title: "blade issue", ToOffline: toOfflinePtr(types.ToOfflineBlade)}, "alice")
	require.NoError(t, err)
	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	for _, n := range names {
		tgt, err := h.store.GetTargetByName(ctx, n)
		require.NoError(t, err)
		require.NotEqual(t, types.StatusOnline, tgt.Status)
	}

	narrowed := toOfflinePtr(types.ToOfflineNode)
	_, err = h.mutator.Update(ctx, issue.ID, mutation.UpdateSpec{ToOffline: &narrowed}, "alice")
	require.NoError(t, err)

	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	tgt9, err := h.store.GetTargetByName(ctx, "gu0009")
	require.NoError(t, err)
	require.NotEqual(t, types.StatusOnline, tgt9.Status)

	for _, n := range []string{"gu0010", "gu0011", "gu0012"} {
		tgt, err := h.store.GetTargetByName(ctx, n)
		require.NoError(t, err)
		require.Equal(t, types.StatusOnline, tgt.Status, "%s should be released once the scope narrows to Node", n)
	}
}

func TestS4_UnknownSchedulerNodeRegisteredOnline(t *testing.T) {
	h := newHarness(t, []string{"gu0003"}, types.StatusOnline)
	ctx := context.Background()

	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	tgt, err := h.store.GetTargetByName(ctx, "gu0003")
	require.NoError(t, err)
	require.Equal(t, types.StatusOnline, tgt.Status)

	issues, err := h.store.FindIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestS5_AutoTicketOnUnexpectedDown(t *testing.T) {
	h := newHarness(t, []string{"gu0007"}, types.StatusOnline)
	h.sched.setDown("gu0007", "hardware fault reported")
	ctx := context.Background()

	require.NoError(t, h.engine.Tick(ctx, uuid.New()))

	tgt, err := h.store.GetTargetByName(ctx, "gu0007")
	require.NoError(t, err)
	require.Equal(t, types.StatusDown, tgt.Status)

	issues, err := h.store.FindIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "ctt", issues[0].CreatedBy)
	require.Equal(t, "hardware fault reported", issues[0].Title)
	require.Nil(t, issues[0].ToOffline)
}

func TestS6_DuplicateOpenIsIdempotent(t *testing.T) {
	h := newHarness(t, []string{"gu0001"}, types.StatusOnline)
	ctx := context.Background()

	a, err := h.mutator.Open(ctx, mutation.NewIssue{Target: "gu0001", Title: "bad memory"}, "alice")
	require.NoError(t, err)
	b, err := h.mutator.Open(ctx, mutation.NewIssue{Target: "gu0001", Title: "bad memory"}, "bob")
	require.NoError(t, err)

	require.Equal(t, a.ID, b.ID)

	issues, err := h.store.FindIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
}

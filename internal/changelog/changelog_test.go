package changelog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NCAR/ctt-server/internal/types"
)

// recordingSink collects every posted digest for assertions.
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

func (r *recordingSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

func TestAggregatorSkipsTickWithNoOperators(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 5, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: "gu0005"})
	time.Sleep(60 * time.Millisecond)

	require.Empty(t, sink.all(), "digest must be skipped when operators is empty, even with node-state events queued")
}

func TestAggregatorFiltersCTTOperatorFromOpenClose(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 5, 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOpen, IssueID: 1, Title: "NIC flap", Operator: "ctt"})
	time.Sleep(40 * time.Millisecond)

	require.Empty(t, sink.all(), "ctt-attributed Open events must not surface an operator and so must not trigger a digest")
}

func TestAggregatorPostsDigestWithRealOperator(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 5, 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOpen, IssueID: 1, Title: "NIC flap", Operator: "alice"})
	agg.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: "gu0005"})
	agg.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: "gu0006"})

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	msg := sink.all()[0]
	require.Contains(t, msg, "alice")
	require.Contains(t, msg, "gu0005")
	require.Contains(t, msg, "gu0006")
}

func TestAggregatorClearsAccumulatorsBetweenTicks(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 5, 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOpen, IssueID: 1, Title: "NIC flap", Operator: "alice"})
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	require.Len(t, sink.all(), 1, "a second tick with no new operators must stay silent")
}

func TestAggregatorFullChannelDropsWithoutBlocking(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 1, time.Hour)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: "gu0001"})
	done := make(chan struct{})
	go func() {
		agg.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: "gu0002"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full channel instead of dropping")
	}
}

func TestAggregatorFlushesFinalDigestOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	agg := New(sink, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go agg.Run(ctx)

	agg.Emit(types.ChangeLogEvent{Kind: types.EventOpen, IssueID: 7, Title: "disk error", Operator: "bob"})
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	require.Contains(t, sink.all()[0], "bob")
}

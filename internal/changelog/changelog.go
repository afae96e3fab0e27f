// Package changelog implements the Changelog Aggregator: a single
// long-lived task that coalesces ChangeLogEvents arriving on a bounded
// channel into a periodic digest, posted to a ChatSink.
package changelog

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/NCAR/ctt-server/internal/types"
)

// ChatSink delivers a formatted digest somewhere an operator will read it.
type ChatSink interface {
	Post(ctx context.Context, message string) error
}

// accumulators holds the six buckets spec.md §4.4 names. Keys of the
// close/update maps are ticket titles; values are the issue IDs sharing
// that title, since the digest groups by title.
type accumulators struct {
	offlineNodes map[string]struct{}
	resumeNodes  map[string]struct{}
	openIssues   map[int64]struct{}
	closeIssues  map[string]map[int64]struct{}
	updateIssues map[string]map[int64]struct{}
	operators    map[string]struct{}
}

func newAccumulators() accumulators {
	return accumulators{
		offlineNodes: make(map[string]struct{}),
		resumeNodes:  make(map[string]struct{}),
		openIssues:   make(map[int64]struct{}),
		closeIssues:  make(map[string]map[int64]struct{}),
		updateIssues: make(map[string]map[int64]struct{}),
		operators:    make(map[string]struct{}),
	}
}

func (a accumulators) empty() bool {
	return len(a.operators) == 0
}

// apply folds one event into the accumulators, per the filtering rule in
// spec.md §4.4: events attributable to the reconciler itself (operator
// "ctt" on Open/Close) are dropped from the Open/Close accumulators but
// still count toward the node-state sections.
func (a accumulators) apply(e types.ChangeLogEvent) {
	switch e.Kind {
	case types.EventOffline:
		a.offlineNodes[e.Target] = struct{}{}
	case types.EventResume:
		a.resumeNodes[e.Target] = struct{}{}
	case types.EventOpen:
		if e.Operator == "ctt" {
			return
		}
		a.openIssues[e.IssueID] = struct{}{}
		a.operators[e.Operator] = struct{}{}
	case types.EventClose:
		if e.Operator == "ctt" {
			return
		}
		addToBucket(a.closeIssues, e.Title, e.IssueID)
		a.operators[e.Operator] = struct{}{}
	case types.EventUpdate:
		addToBucket(a.updateIssues, e.Title, e.IssueID)
		a.operators[e.Operator] = struct{}{}
	}
}

func addToBucket(bucket map[string]map[int64]struct{}, title string, issueID int64) {
	set, ok := bucket[title]
	if !ok {
		set = make(map[int64]struct{})
		bucket[title] = set
	}
	set[issueID] = struct{}{}
}

// Aggregator owns the bounded ChangeLogEvent channel and the digest timer.
type Aggregator struct {
	events chan types.ChangeLogEvent
	sink   ChatSink
	period time.Duration
}

// New creates an Aggregator with a channel of the given capacity
// (spec.md §4.4 documents 5 as a typical size) posting digests every
// period to sink.
func New(sink ChatSink, capacity int, period time.Duration) *Aggregator {
	return &Aggregator{
		events: make(chan types.ChangeLogEvent, capacity),
		sink:   sink,
		period: period,
	}
}

// Emit non-blockingly enqueues e. A full channel drops the event: events
// are hints for chat narration, not the system of record.
func (a *Aggregator) Emit(e types.ChangeLogEvent) {
	select {
	case a.events <- e:
	default:
		log.Printf("changelog: channel full, dropping event kind=%s target=%s issue=%d", e.Kind, e.Target, e.IssueID)
	}
}

// Run folds incoming events into the accumulators and posts a digest
// every period, until ctx is canceled. On cancellation it drains the
// events still queued and posts a final non-empty digest before
// returning.
func (a *Aggregator) Run(ctx context.Context) {
	acc := newAccumulators()
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-a.events:
			if !ok {
				a.flush(ctx, acc)
				return
			}
			acc.apply(e)
		case <-ticker.C:
			acc = a.tick(ctx, acc)
		case <-ctx.Done():
			a.flush(ctx, acc)
			return
		}
	}
}

// tick posts a digest if the accumulators are non-empty and returns a
// fresh, cleared set of accumulators.
func (a *Aggregator) tick(ctx context.Context, acc accumulators) accumulators {
	if acc.empty() {
		return acc
	}
	if err := a.sink.Post(ctx, formatDigest(acc)); err != nil {
		log.Printf("changelog: post digest failed: %v", err)
	}
	return newAccumulators()
}

// flush posts a final non-empty digest on shutdown, per spec.md §7's
// cancellation contract.
func (a *Aggregator) flush(ctx context.Context, acc accumulators) {
	for {
		select {
		case e, ok := <-a.events:
			if !ok {
				if !acc.empty() {
					if err := a.sink.Post(ctx, formatDigest(acc)); err != nil {
						log.Printf("changelog: post final digest failed: %v", err)
					}
				}
				return
			}
			acc.apply(e)
		default:
			if !acc.empty() {
				if err := a.sink.Post(ctx, formatDigest(acc)); err != nil {
					log.Printf("changelog: post final digest failed: %v", err)
				}
			}
			return
		}
	}
}

// formatDigest renders the six accumulators in spec.md §4.4's mandated
// section order: operators; Opened; Updated; Closed; Offlined; Resumed.
func formatDigest(acc accumulators) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", sortedKeys(acc.operators))
	fmt.Fprintf(&b, " Opened: %v", sortedInt64Keys(acc.openIssues))
	fmt.Fprintf(&b, ", Updated: %s", formatTitleBucket(acc.updateIssues))
	fmt.Fprintf(&b, ", Closed: %s", formatTitleBucket(acc.closeIssues))
	fmt.Fprintf(&b, ", Offlined: %v", sortedKeys(acc.offlineNodes))
	fmt.Fprintf(&b, ", Resumed: %v", sortedKeys(acc.resumeNodes))
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInt64Keys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func formatTitleBucket(bucket map[string]map[int64]struct{}) string {
	titles := make([]string, 0, len(bucket))
	for t := range bucket {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	parts := make([]string, 0, len(titles))
	for _, t := range titles {
		parts = append(parts, fmt.Sprintf("%s:%v", t, sortedInt64Keys(bucket[t])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

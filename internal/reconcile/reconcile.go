// Package reconcile implements the Reconciliation Engine (spec.md §4.6):
// the single long-running task that compares believed scheduler state
// against the expected state implied by open tickets, and drives the
// scheduler toward it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/NCAR/ctt-server/internal/mutation"
	"github.com/NCAR/ctt-server/internal/projection"
	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/topology"
	"github.com/NCAR/ctt-server/internal/types"
)

const autoTicketCreator = "ctt"

// Engine is the reconciler: it owns the scheduler handle exclusively and
// is driven by a single goroutine via Run.
type Engine struct {
	store      storage.Storage
	resolver   topology.Resolver
	sched      scheduler.Adapter
	mutations  *mutation.Engine
	pollPeriod time.Duration

	rebuildSched func() (scheduler.Adapter, error)
}

// New builds a reconciliation Engine. rebuildSched, if non-nil, is
// called to obtain a fresh scheduler handle after a credential-expiry
// error, per spec.md §7 item 1; if nil, the existing handle is retried
// as-is.
func New(store storage.Storage, resolver topology.Resolver, sched scheduler.Adapter, mutations *mutation.Engine, pollPeriod time.Duration, rebuildSched func() (scheduler.Adapter, error)) *Engine {
	return &Engine{
		store:        store,
		resolver:     resolver,
		sched:        sched,
		mutations:    mutations,
		pollPeriod:   pollPeriod,
		rebuildSched: rebuildSched,
	}
}

// Run fires Tick every pollPeriod until ctx is canceled. Missed ticks
// collapse: time.Ticker never backlogs, and each tick runs to completion
// before the next is considered, per spec.md §4.6's cadence rule.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id := uuid.New()
			if err := e.Tick(ctx, id); err != nil {
				log.Printf("reconcile[%s]: tick aborted: %v", id, err)
			}
		}
	}
}

// Tick runs one reconciliation pass, tagged with id for log correlation.
func (e *Engine) Tick(ctx context.Context, id uuid.UUID) error {
	schedState, err := e.fetchSchedulerState(ctx)
	if err != nil {
		return fmt.Errorf("fetch scheduler state: %w", err)
	}

	targets, err := e.store.AllTargets(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	believed := make(map[string]*types.Target, len(targets))
	for _, t := range targets {
		believed[t.Name] = t
	}

	opening, err := e.store.FindIssues(ctx, types.IssueFilter{Status: []types.IssueStatus{types.StatusIssueOpening}})
	if err != nil {
		return fmt.Errorf("snapshot opening issues: %w", err)
	}
	closing, err := e.store.FindIssues(ctx, types.IssueFilter{Status: []types.IssueStatus{types.StatusIssueClosing}})
	if err != nil {
		return fmt.Errorf("snapshot closing issues: %w", err)
	}

	expected, err := projection.ExpectedState(ctx, e.store, e.resolver)
	if err != nil {
		return fmt.Errorf("compute expected state: %w", err)
	}

	if err := e.registerUnknownNodes(ctx, schedState, believed); err != nil {
		return fmt.Errorf("register unknown nodes: %w", err)
	}

	for name, t := range believed {
		if err := e.reconcileTarget(ctx, id, name, t, schedState, expected); err != nil {
			log.Printf("reconcile[%s]: target %s: %v", id, name, err)
		}
	}

	if err := e.promote(ctx, opening, types.StatusIssueOpen); err != nil {
		return fmt.Errorf("promote opening issues: %w", err)
	}
	if err := e.promote(ctx, closing, types.StatusIssueClosed); err != nil {
		return fmt.Errorf("promote closing issues: %w", err)
	}
	return nil
}

// fetchSchedulerState calls NodesStatus, retrying once with a rebuilt
// handle on ErrCredentialExpired, per spec.md §7 item 1.
func (e *Engine) fetchSchedulerState(ctx context.Context) (map[string]scheduler.NodeState, error) {
	state, err := e.sched.NodesStatus(ctx)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, scheduler.ErrCredentialExpired) {
		return nil, err
	}

	log.Printf("reconcile: scheduler credential expired, rebuilding handle")
	if e.rebuildSched != nil {
		fresh, rebuildErr := e.rebuildSched()
		if rebuildErr != nil {
			return nil, fmt.Errorf("rebuild scheduler handle: %w", rebuildErr)
		}
		e.sched = fresh
	}
	return e.sched.NodesStatus(ctx)
}

// registerUnknownNodes inserts a Target for every real node the
// scheduler reports that CTT has not yet seen, per spec.md §4.6.
func (e *Engine) registerUnknownNodes(ctx context.Context, schedState map[string]scheduler.NodeState, believed map[string]*types.Target) error {
	for name := range schedState {
		if !e.resolver.IsRealNode(name) {
			continue
		}
		if _, ok := believed[name]; ok {
			continue
		}
		t, err := e.store.EnsureTarget(ctx, name)
		if err != nil {
			return err
		}
		believed[name] = t
	}
	return nil
}

// promote transitions every issue in snapshot to status.
func (e *Engine) promote(ctx context.Context, snapshot []*types.Issue, status types.IssueStatus) error {
	for _, i := range snapshot {
		if err := e.store.SetIssueStatus(ctx, i.ID, status, nil); err != nil {
			return fmt.Errorf("promote issue %d to %s: %w", i.ID, status, err)
		}
	}
	return nil
}

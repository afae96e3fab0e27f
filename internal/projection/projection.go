// Package projection computes the expected-state map the reconciliation
// engine drives the scheduler toward (spec.md §4.6), shared with the
// mutation engine's narrowing-release check (spec.md §4.5) so both sides
// of a to_offline scope change agree on what "still implicated" means.
package projection

import (
	"context"
	"fmt"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/topology"
	"github.com/NCAR/ctt-server/internal/types"
)

// ExpectedState computes E: name -> TargetStatus from every issue whose
// status is Opening or Open, per spec.md §4.6's expected-state recipe.
// Names absent from the returned map are expected Online.
func ExpectedState(ctx context.Context, store storage.Storage, resolver topology.Resolver) (map[string]types.TargetStatus, error) {
	issues, err := store.FindIssues(ctx, types.IssueFilter{
		Status: []types.IssueStatus{types.StatusIssueOpening, types.StatusIssueOpen},
	})
	if err != nil {
		return nil, fmt.Errorf("expected state: %w", err)
	}

	targets, err := store.AllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("expected state: %w", err)
	}
	nameByID := make(map[int64]string, len(targets))
	for _, t := range targets {
		nameByID[t.ID] = t.Name
	}

	e := make(map[string]types.TargetStatus)
	for _, i := range issues {
		name, ok := nameByID[i.TargetID]
		if !ok {
			continue
		}
		implicated(e, resolver, name, i.ToOffline)
	}
	return e, nil
}

// implicated folds one issue's implicated-node set into e, per spec.md
// §4.6: Node scope implicates just the target; Card implicates its
// siblings; Blade implicates its cousins; an absent scope implicates
// only the target itself, contributing Down rather than Offline.
func implicated(e map[string]types.TargetStatus, resolver topology.Resolver, name string, scope *types.ToOffline) {
	if scope == nil {
		if e[name] != types.StatusOffline {
			e[name] = types.StatusDown
		}
		return
	}

	var r []string
	switch *scope {
	case types.ToOfflineNode:
		r = []string{name}
	case types.ToOfflineCard:
		r = resolver.Siblings(name)
	case types.ToOfflineBlade:
		r = resolver.Cousins(name)
	default:
		r = []string{name}
	}
	for _, n := range r {
		e[n] = types.StatusOffline
	}
}

// Status looks up name's expected status in e, defaulting to Online when
// absent.
func Status(e map[string]types.TargetStatus, name string) types.TargetStatus {
	if s, ok := e[name]; ok {
		return s
	}
	return types.StatusOnline
}

// Implicates reports whether a ticket filed against target with the
// given to_offline scope implicates candidate — i.e. candidate is in
// that ticket's implicated set (itself for Node/absent, siblings for
// Card, cousins for Blade).
func Implicates(resolver topology.Resolver, target string, scope *types.ToOffline, candidate string) bool {
	if scope == nil {
		return target == candidate
	}
	switch *scope {
	case types.ToOfflineNode:
		return target == candidate
	case types.ToOfflineCard:
		for _, n := range resolver.Siblings(target) {
			if n == candidate {
				return true
			}
		}
		return false
	case types.ToOfflineBlade:
		for _, n := range resolver.Cousins(target) {
			if n == candidate {
				return true
			}
		}
		return false
	default:
		return target == candidate
	}
}

// AnyClosingImplicates reports whether any issue currently in the
// Closing status implicates candidate under its to_offline scope. Used
// by the reconciler's Online-release check (spec.md §4.6): when exp is
// already Online, any ticket still implicating a node must be Closing
// (Opening/Open tickets would have kept exp at Offline/Down), so this is
// equivalent to "ticket(s) on t are all in Closing".
func AnyClosingImplicates(ctx context.Context, store storage.Storage, resolver topology.Resolver, candidate string) (bool, error) {
	closing, err := store.FindIssues(ctx, types.IssueFilter{Status: []types.IssueStatus{types.StatusIssueClosing}})
	if err != nil {
		return false, fmt.Errorf("closing tickets implicating %s: %w", candidate, err)
	}
	if len(closing) == 0 {
		return false, nil
	}

	targets, err := store.AllTargets(ctx)
	if err != nil {
		return false, fmt.Errorf("closing tickets implicating %s: %w", candidate, err)
	}
	nameByID := make(map[int64]string, len(targets))
	for _, t := range targets {
		nameByID[t.ID] = t.Name
	}

	for _, i := range closing {
		name, ok := nameByID[i.TargetID]
		if !ok {
			continue
		}
		if Implicates(resolver, name, i.ToOffline, candidate) {
			return true, nil
		}
	}
	return false, nil
}

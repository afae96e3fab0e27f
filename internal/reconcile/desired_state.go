package reconcile

import (
	"context"
	"fmt"

	"github.com/NCAR/ctt-server/internal/projection"
	"github.com/NCAR/ctt-server/internal/types"
)

// DesiredState answers "what should this node's status be right now, and
// why" without waiting for the next tick — ported from
// original_source/src/sync.rs's desired_state, used there by mutation
// API handlers that want to explain a node's state immediately. Reuses
// the same expected-state projection the tick loop computes rather than
// the Rust original's three sequential per-node/sibling/cousin queries.
func (e *Engine) DesiredState(ctx context.Context, name string) (types.TargetStatus, string, error) {
	if !e.resolver.IsRealNode(name) {
		return types.StatusOffline, "Not a real node", nil
	}

	expected, err := projection.ExpectedState(ctx, e.store, e.resolver)
	if err != nil {
		return "", "", fmt.Errorf("desired state for %s: %w", name, err)
	}

	status := projection.Status(expected, name)
	if status != types.StatusOffline {
		return status, "", nil
	}

	if reason, ok, err := e.ownTicketReason(ctx, name); err != nil {
		return "", "", fmt.Errorf("desired state for %s: %w", name, err)
	} else if ok {
		return types.StatusOffline, reason, nil
	}
	return types.StatusOffline, fmt.Sprintf("%s sibling", name), nil
}

// ownTicketReason reports the title of an open/opening ticket directly
// against name with a non-nil to_offline scope, if one exists — the
// "offline due to node ticket" case the Rust original checks first.
func (e *Engine) ownTicketReason(ctx context.Context, name string) (string, bool, error) {
	target, err := e.store.GetTargetByName(ctx, name)
	if err != nil {
		return "", false, nil
	}
	issues, err := e.store.IssuesForTarget(ctx, target.ID, types.IssueFilter{
		Status: []types.IssueStatus{types.StatusIssueOpening, types.StatusIssueOpen},
	})
	if err != nil {
		return "", false, err
	}
	for _, i := range issues {
		if i.ToOffline != nil {
			return i.Title, true, nil
		}
	}
	return "", false, nil
}

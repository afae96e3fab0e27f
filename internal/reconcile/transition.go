package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/NCAR/ctt-server/internal/mutation"
	"github.com/NCAR/ctt-server/internal/projection"
	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

const nodeNotFoundTitle = "Node not found in pbs"

// reconcileTarget applies the per-node transition table of spec.md §4.6
// to one target and persists its new believed status if it changed.
func (e *Engine) reconcileTarget(ctx context.Context, tickID uuid.UUID, name string, t *types.Target, schedState map[string]scheduler.NodeState, expected map[string]types.TargetStatus) error {
	ns, ok := schedState[name]
	if !ok {
		_, err := e.mutations.Open(ctx, mutation.NewIssue{
			Target: name,
			Title:  nodeNotFoundTitle,
		}, autoTicketCreator)
		if err != nil {
			return fmt.Errorf("open %q ticket: %w", nodeNotFoundTitle, err)
		}
		return nil
	}

	cur := ns.Status
	comment := ns.Comment
	exp := projection.Status(expected, name)
	old := t.Status

	newStatus, err := e.applyTransition(ctx, tickID, name, exp, cur, comment)
	if err != nil {
		return err
	}

	if newStatus != old {
		if err := e.store.SetTargetStatus(ctx, t.ID, newStatus); err != nil {
			return fmt.Errorf("persist status: %w", err)
		}
	}
	return nil
}

// applyTransition implements spec.md §4.6's transition table and returns
// the node's new believed status.
func (e *Engine) applyTransition(ctx context.Context, tickID uuid.UUID, name string, exp, cur types.TargetStatus, comment string) (types.TargetStatus, error) {
	switch exp {
	case types.StatusOnline:
		return e.transitionExpectedOnline(ctx, name, cur, comment)
	case types.StatusOffline:
		return e.transitionExpectedOffline(ctx, name, cur, comment)
	case types.StatusDown:
		return e.transitionExpectedDown(ctx, name, cur)
	default:
		return cur, fmt.Errorf("expected state %q is not a valid reconciler target for %s", exp, name)
	}
}

func (e *Engine) transitionExpectedOnline(ctx context.Context, name string, cur types.TargetStatus, comment string) (types.TargetStatus, error) {
	if cur == types.StatusOnline {
		return types.StatusOnline, nil
	}

	hasClosingTicket, err := projection.AnyClosingImplicates(ctx, e.store, e.resolver, name)
	if err != nil {
		return cur, err
	}
	if hasClosingTicket {
		if err := e.sched.Release(ctx, name); err != nil {
			return cur, fmt.Errorf("release %s: %w", name, err)
		}
		e.mutations.EmitResume(name)
		return types.StatusOnline, nil
	}

	_, err = e.mutations.Open(ctx, mutation.NewIssue{Target: name, Title: comment}, autoTicketCreator)
	if err != nil {
		return cur, fmt.Errorf("auto-open ticket for %s: %w", name, err)
	}
	return cur, nil
}

func (e *Engine) transitionExpectedOffline(ctx context.Context, name string, cur types.TargetStatus, comment string) (types.TargetStatus, error) {
	switch cur {
	case types.StatusDraining:
		return types.StatusDraining, nil
	case types.StatusOffline:
		return types.StatusOffline, nil
	case types.StatusDown:
		if err := e.sched.Offline(ctx, name, comment); err != nil {
			return cur, fmt.Errorf("offline %s: %w", name, err)
		}
		return types.StatusOffline, nil
	default:
		if err := e.sched.Offline(ctx, name, comment); err != nil {
			return cur, fmt.Errorf("offline %s: %w", name, err)
		}
		e.mutations.EmitOffline(name)
		return types.StatusDraining, nil
	}
}

func (e *Engine) transitionExpectedDown(ctx context.Context, name string, cur types.TargetStatus) (types.TargetStatus, error) {
	if cur != types.StatusOnline {
		return cur, nil
	}
	if err := e.autoCloseNonClosed(ctx, name); err != nil {
		return cur, err
	}
	return types.StatusOnline, nil
}

// autoCloseNonClosed closes every non-Closed issue on name when the
// scheduler reports the node as unexpectedly back online, per spec.md
// §4.6's Down→Online row.
func (e *Engine) autoCloseNonClosed(ctx context.Context, name string) error {
	target, err := e.store.GetTargetByName(ctx, name)
	if err != nil {
		return err
	}
	issues, err := e.store.IssuesForTarget(ctx, target.ID, types.IssueFilter{
		Status: []types.IssueStatus{types.StatusIssueOpening, types.StatusIssueOpen, types.StatusIssueClosing},
	})
	if err != nil {
		return err
	}
	for _, i := range issues {
		if err := e.store.SetIssueStatus(ctx, i.ID, types.StatusIssueClosed, []storage.NewComment{
			{CreatedBy: autoTicketCreator, Comment: "node found up, assuming issue is resolved"},
		}); err != nil {
			return fmt.Errorf("auto-close issue %d: %w", i.ID, err)
		}
	}
	return nil
}

// Package mutation implements ticket open/update/close (spec.md §4.5).
// Open and Close never touch the scheduler: they stage tickets through
// Opening/Closing and the reconciliation engine (internal/reconcile)
// drives the actual scheduler side effects on its next tick. Update is the
// one exception: it calls Release for nodes a narrowed to_offline scope no
// longer implicates.
package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/NCAR/ctt-server/internal/changelog"
	"github.com/NCAR/ctt-server/internal/projection"
	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/topology"
	"github.com/NCAR/ctt-server/internal/types"
)

// ErrUnknownNode is returned by Open when the target name does not pass
// the topology resolver's is_real_node check.
var ErrUnknownNode = fmt.Errorf("mutation: target is not a known node")

// NewIssue is the caller-supplied shape for Open.
type NewIssue struct {
	Target      string
	Title       string
	Description string
	AssignedTo  string
	ToOffline   *types.ToOffline
}

// UpdateSpec carries the fields an update may change. A nil pointer
// field means "leave unchanged"; AssignedTo uses a pointer to a string
// so an explicit empty string (clearing the assignee) is distinguishable
// from "not provided".
type UpdateSpec struct {
	AssignedTo  *string
	Description *string
	Title       *string
	ToOffline   **types.ToOffline
}

// Engine implements the ticket mutation operations. sched is used only by
// Update, to release nodes a narrowed to_offline scope no longer
// implicates; open() and close() never touch it directly (spec.md §4.5).
type Engine struct {
	store    storage.Storage
	resolver topology.Resolver
	sched    scheduler.Adapter
	events   *changelog.Aggregator
}

// New builds a mutation Engine.
func New(store storage.Storage, resolver topology.Resolver, sched scheduler.Adapter, events *changelog.Aggregator) *Engine {
	return &Engine{store: store, resolver: resolver, sched: sched, events: events}
}

// scopeRank orders to_offline scopes from narrowest to broadest so Update
// can detect a narrowing change. An absent scope ranks below Node: it
// implicates only the target and contributes Down rather than Offline
// (projection.implicated), so dropping to absent is also a narrowing.
func scopeRank(s *types.ToOffline) int {
	if s == nil {
		return 0
	}
	switch *s {
	case types.ToOfflineNode:
		return 1
	case types.ToOfflineCard:
		return 2
	case types.ToOfflineBlade:
		return 3
	default:
		return 1
	}
}

func implicatedNames(resolver topology.Resolver, name string, scope *types.ToOffline) map[string]struct{} {
	out := make(map[string]struct{})
	if scope == nil {
		out[name] = struct{}{}
		return out
	}
	var names []string
	switch *scope {
	case types.ToOfflineNode:
		names = []string{name}
	case types.ToOfflineCard:
		names = resolver.Siblings(name)
	case types.ToOfflineBlade:
		names = resolver.Cousins(name)
	default:
		names = []string{name}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Open implements spec.md §4.5 open(). It is idempotent: an existing
// Opening/Open issue on the same (target, title) is returned unchanged.
func (e *Engine) Open(ctx context.Context, in NewIssue, operator string) (*types.Issue, error) {
	if !e.resolver.IsRealNode(in.Target) {
		return nil, fmt.Errorf("open %q on %s: %w", in.Title, in.Target, ErrUnknownNode)
	}

	target, err := e.store.EnsureTarget(ctx, in.Target)
	if err != nil {
		return nil, fmt.Errorf("open %q on %s: %w", in.Title, in.Target, err)
	}

	existing, err := e.store.IssuesForTarget(ctx, target.ID, types.IssueFilter{
		Title:  in.Title,
		Status: []types.IssueStatus{types.StatusIssueOpening, types.StatusIssueOpen},
	})
	if err != nil {
		return nil, fmt.Errorf("open %q on %s: %w", in.Title, in.Target, err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	now := time.Now()
	issue := &types.Issue{
		TargetID:    target.ID,
		Title:       in.Title,
		Description: in.Description,
		CreatedBy:   operator,
		AssignedTo:  in.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
		ToOffline:   in.ToOffline,
		Status:      types.StatusIssueOpening,
	}
	created, err := e.store.CreateIssue(ctx, issue, []storage.NewComment{
		{CreatedBy: operator, Comment: "Opening issue"},
	})
	if err != nil {
		return nil, fmt.Errorf("open %q on %s: %w", in.Title, in.Target, err)
	}

	e.events.Emit(types.ChangeLogEvent{Kind: types.EventOpen, IssueID: created.ID, Title: created.Title, Operator: operator})
	return created, nil
}

// Update implements spec.md §4.5 update(). For each changed field a
// Comment describing the change is appended; an empty AssignedTo clears
// the assignee. When to_offline narrows (Blade→Card, Blade→Node,
// Card→Node, or either collapsing to absent), every node the old scope
// implicated but the new scope does not is checked against the current
// expected-state projection (shared with the reconciliation engine,
// internal/projection) and released if it is expected Online — this
// consults siblings' and cousins' own open tickets rather than
// releasing blindly, per original_source/src/sync.rs's related_closing.
func (e *Engine) Update(ctx context.Context, issueID int64, spec UpdateSpec, operator string) (*types.Issue, error) {
	issue, err := e.store.FindIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("update issue %d: %w", issueID, err)
	}
	var comments []storage.NewComment
	changeField := func(label, old, new string) {
		comments = append(comments, storage.NewComment{
			CreatedBy: operator,
			Comment:   fmt.Sprintf("Updating %s from %s to %s", label, old, new),
		})
	}

	var oldScope *types.ToOffline
	if issue.ToOffline != nil {
		v := *issue.ToOffline
		oldScope = &v
	}

	if spec.Title != nil && *spec.Title != issue.Title {
		changeField("title", issue.Title, *spec.Title)
		issue.Title = *spec.Title
	}
	if spec.Description != nil && *spec.Description != issue.Description {
		changeField("description", issue.Description, *spec.Description)
		issue.Description = *spec.Description
	}
	if spec.AssignedTo != nil && *spec.AssignedTo != issue.AssignedTo {
		changeField("assigned_to", issue.AssignedTo, *spec.AssignedTo)
		issue.AssignedTo = *spec.AssignedTo
	}
	var toOfflineChanged bool
	if spec.ToOffline != nil {
		newScope := *spec.ToOffline
		if !sameScope(issue.ToOffline, newScope) {
			changeField("to_offline", scopeLabel(issue.ToOffline), scopeLabel(newScope))
			issue.ToOffline = newScope
			toOfflineChanged = true
		}
	}

	issue.UpdatedAt = time.Now()
	if err := e.store.UpdateIssue(ctx, issue, comments); err != nil {
		return nil, fmt.Errorf("update issue %d: %w", issueID, err)
	}

	if toOfflineChanged && scopeRank(issue.ToOffline) < scopeRank(oldScope) {
		if err := e.releaseNarrowedScope(ctx, issue, oldScope); err != nil {
			return nil, fmt.Errorf("update issue %d: %w", issueID, err)
		}
	}

	e.events.Emit(types.ChangeLogEvent{Kind: types.EventUpdate, IssueID: issue.ID, Title: issue.Title, Operator: operator})
	return issue, nil
}

func sameScope(a *types.ToOffline, b *types.ToOffline) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func scopeLabel(s *types.ToOffline) string {
	if s == nil {
		return "none"
	}
	return string(*s)
}

// releaseNarrowedScope finds nodes implicated by oldScope but not by
// issue's current scope and releases each one the current expected-state
// projection says should be Online.
func (e *Engine) releaseNarrowedScope(ctx context.Context, issue *types.Issue, oldScope *types.ToOffline) error {
	target, err := e.targetByID(ctx, issue.TargetID)
	if err != nil {
		return err
	}

	before := implicatedNames(e.resolver, target.Name, oldScope)
	after := implicatedNames(e.resolver, target.Name, issue.ToOffline)

	expected, err := projection.ExpectedState(ctx, e.store, e.resolver)
	if err != nil {
		return err
	}

	for name := range before {
		if _, stillImplicated := after[name]; stillImplicated {
			continue
		}
		if projection.Status(expected, name) != types.StatusOnline {
			continue
		}
		if err := e.sched.Release(ctx, name); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		e.events.Emit(types.ChangeLogEvent{Kind: types.EventResume, Target: name})
	}
	return nil
}

func (e *Engine) targetByID(ctx context.Context, targetID int64) (*types.Target, error) {
	all, err := e.store.AllTargets(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.ID == targetID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("target id %d: %w", targetID, storage.ErrNotFound)
}

// EmitOffline emits a ChangeLogEvent::Offline for name. Called by the
// reconciliation engine when it drains a node the scheduler had not yet
// marked offline.
func (e *Engine) EmitOffline(name string) {
	e.events.Emit(types.ChangeLogEvent{Kind: types.EventOffline, Target: name})
}

// EmitResume emits a ChangeLogEvent::Resume for name. Called by the
// reconciliation engine when it releases a node back to service.
func (e *Engine) EmitResume(name string) {
	e.events.Emit(types.ChangeLogEvent{Kind: types.EventResume, Target: name})
}

// Close implements spec.md §4.5 close(). Only Opening/Open issues are
// affected; the scheduler release and the Closing→Closed promotion are
// the reconciler's job.
func (e *Engine) Close(ctx context.Context, issueID int64, operator, comment string) error {
	issue, err := e.store.FindIssue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("close issue %d: %w", issueID, err)
	}
	if issue.Status != types.StatusIssueOpening && issue.Status != types.StatusIssueOpen {
		return nil
	}

	if err := e.store.SetIssueStatus(ctx, issueID, types.StatusIssueClosing, []storage.NewComment{
		{CreatedBy: operator, Comment: comment},
	}); err != nil {
		return fmt.Errorf("close issue %d: %w", issueID, err)
	}

	e.events.Emit(types.ChangeLogEvent{Kind: types.EventClose, IssueID: issueID, Title: issue.Title, Comment: comment, Operator: operator})
	return nil
}

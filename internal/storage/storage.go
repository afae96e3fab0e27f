// Package storage defines the persistence contract for Targets, Issues,
// and Comments (spec.md §3/§4.3). Concrete backends live in subpackages;
// callers depend only on the Storage interface.
package storage

import (
	"context"
	"errors"

	"github.com/NCAR/ctt-server/internal/types"
)

// Sentinel errors, in the teacher's own wrapDBError idiom: fmt.Errorf
// wraps one of these so callers can test with errors.Is.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a write would violate a uniqueness invariant
	// (e.g. two open issues on the same (target, title) pair).
	ErrConflict = errors.New("conflict")
	// ErrInvalidIssue indicates an issue mutation referenced a target id
	// that does not exist in the store.
	ErrInvalidIssue = errors.New("invalid issue")
)

// Storage is the full persistence contract. Mutation boundaries documented
// per method must be honored by every implementation: each of CreateIssue,
// UpdateIssue, and SetIssueStatus commits its Issue row together with the
// Comment rows that document it, atomically.
type Storage interface {
	// GetTargetByName returns the target named name, or ErrNotFound.
	GetTargetByName(ctx context.Context, name string) (*types.Target, error)
	// EnsureTarget returns the target named name, lazily inserting it
	// with status Online if it does not already exist.
	EnsureTarget(ctx context.Context, name string) (*types.Target, error)
	// AllTargets returns every target, ordered by name ascending.
	AllTargets(ctx context.Context) ([]*types.Target, error)
	// SetTargetStatus updates a target's believed status.
	SetTargetStatus(ctx context.Context, targetID int64, status types.TargetStatus) error

	// FindIssue returns the issue with the given id, or ErrNotFound.
	FindIssue(ctx context.Context, id int64) (*types.Issue, error)
	// IssuesForTarget returns every issue against targetID matching
	// filter (TargetID in filter is ignored; targetID wins).
	IssuesForTarget(ctx context.Context, targetID int64, filter types.IssueFilter) ([]*types.Issue, error)
	// FindIssues returns every issue matching filter, across all targets.
	FindIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	// CreateIssue inserts issue with the status the caller set (the
	// mutation engine always uses StatusIssueOpening) along with the
	// comments that document its creation, atomically.
	CreateIssue(ctx context.Context, issue *types.Issue, comments []NewComment) (*types.Issue, error)
	// UpdateIssue persists issue's current field values (as mutated by
	// the caller) together with comments documenting the change,
	// atomically. issue.UpdatedAt must already be refreshed by the
	// caller.
	UpdateIssue(ctx context.Context, issue *types.Issue, comments []NewComment) error
	// SetIssueStatus transitions an issue to status, optionally writing
	// comments atomically with the transition.
	SetIssueStatus(ctx context.Context, issueID int64, status types.IssueStatus, comments []NewComment) error

	// CommentsForIssue returns every comment on issueID, oldest first.
	CommentsForIssue(ctx context.Context, issueID int64) ([]*types.Comment, error)
}

// NewComment is the input shape for appending a Comment as part of a
// larger mutation's transaction.
type NewComment struct {
	CreatedBy string
	Comment   string
}

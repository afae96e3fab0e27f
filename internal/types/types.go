// Package types defines the persistent entities and in-memory event type
// shared across the reconciliation engine, mutation engine, and storage
// layer.
package types

import "time"

// TargetStatus is the believed scheduler state of a compute node, as
// maintained by the reconciliation engine.
type TargetStatus string

const (
	StatusOnline   TargetStatus = "Online"
	StatusDraining TargetStatus = "Draining"
	StatusOffline  TargetStatus = "Offline"
	StatusDown     TargetStatus = "Down"
)

// Valid reports whether s is one of the four recognized target statuses.
func (s TargetStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusDraining, StatusOffline, StatusDown:
		return true
	}
	return false
}

// IssueStatus is the lifecycle phase of a ticket.
type IssueStatus string

const (
	// StatusIssueOpening is transient: the ticket exists in the database
	// but the reconciler has not yet applied the corresponding offline
	// action.
	StatusIssueOpening IssueStatus = "Opening"
	StatusIssueOpen     IssueStatus = "Open"
	// StatusIssueClosing is transient: the reconciler has not yet
	// applied the corresponding release action.
	StatusIssueClosing IssueStatus = "Closing"
	StatusIssueClosed  IssueStatus = "Closed"
)

// Open reports whether the issue is in a status that contributes to the
// expected-state projection (Opening or Open).
func (s IssueStatus) Open() bool {
	return s == StatusIssueOpening || s == StatusIssueOpen
}

// ToOffline is how far a ticket drains hardware.
type ToOffline string

const (
	ToOfflineNode  ToOffline = "Node"
	ToOfflineCard  ToOffline = "Card"
	ToOfflineBlade ToOffline = "Blade"
)

// Target is a compute node known to the system.
type Target struct {
	ID     int64
	Name   string
	Status TargetStatus
}

// Issue is one operator-visible ticket against one Target.
type Issue struct {
	ID          int64
	TargetID    int64
	Title       string
	Description string
	CreatedBy   string
	AssignedTo  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ToOffline   *ToOffline
	Status      IssueStatus
}

// Comment is an append-only event on an Issue.
type Comment struct {
	ID        int64
	IssueID   int64
	CreatedBy string
	CreatedAt time.Time
	Comment   string
}

// IssueFilter narrows a query over issues. Nil/empty fields are
// unconstrained.
type IssueFilter struct {
	TargetID *int64
	Status   []IssueStatus
	Title    string
}

// Matches reports whether issue i satisfies the filter.
func (f IssueFilter) Matches(i *Issue) bool {
	if f.TargetID != nil && i.TargetID != *f.TargetID {
		return false
	}
	if f.Title != "" && i.Title != f.Title {
		return false
	}
	if len(f.Status) > 0 {
		ok := false
		for _, s := range f.Status {
			if i.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// EventKind discriminates the arms of ChangeLogEvent.
type EventKind string

const (
	EventOffline EventKind = "Offline"
	EventResume  EventKind = "Resume"
	EventOpen    EventKind = "Open"
	EventUpdate  EventKind = "Update"
	EventClose   EventKind = "Close"
)

// ChangeLogEvent is an in-memory, tagged variant describing one observable
// change the changelog aggregator should fold into its next digest. Not
// all fields are populated for every Kind; see the EventKind constants.
type ChangeLogEvent struct {
	Kind     EventKind
	Target   string // Offline, Resume
	Operator string // Open, Update, Close; left empty on Offline and Resume
	IssueID  int64  // Open, Update, Close
	Title    string // Open, Update, Close
	Comment  string // Close
}

// Package scheduler narrowly wraps the batch scheduler: report per-node
// status, offline a node with a comment, and release an offline node.
// The reconciliation engine makes the status queries and the Offline and
// Release calls of each tick; the mutation engine's Update also calls
// Release for nodes a narrowed to_offline scope no longer implicates.
package scheduler

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/NCAR/ctt-server/internal/types"
)

// ErrCredentialExpired is returned (wrapped) by an Adapter when the
// underlying transient error contained the token "Expired credential".
// The reconciliation engine discards and rebuilds its handle on this
// error and retries once within the same tick.
var ErrCredentialExpired = errors.New("scheduler: credential expired")

// NodeState is one entry of an Adapter's status report: the derived
// TargetStatus plus the scheduler's verbatim per-node comment.
type NodeState struct {
	Status  types.TargetStatus
	Comment string
}

// Adapter is the capability set exposed to the rest of CTT. cmd/cttd
// hands one instance to both the reconciliation engine (which calls it
// from its single tick goroutine) and the mutation engine (which calls
// Release from Update). The shipped adapters hold only their
// configuration and run one external command per call.
type Adapter interface {
	// NodesStatus returns the scheduler's current view of every node it
	// knows about.
	NodesStatus(ctx context.Context) (map[string]NodeState, error)
	// Offline asks the scheduler to drain name with an attached operator
	// comment.
	Offline(ctx context.Context, name, comment string) error
	// Release clears any offline mark on name.
	Release(ctx context.Context, name string) error
}

// WrapTransientError inspects err for the credential-expiry token and,
// if present, wraps it in ErrCredentialExpired so callers can detect it
// with errors.Is. Any other error is returned unchanged.
func WrapTransientError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Expired credential") {
		return errors.Join(ErrCredentialExpired, err)
	}
	return err
}

// Classify derives a TargetStatus from a scheduler's raw per-node state
// string and whether the node currently has running jobs, per the
// classification table in spec.md §4.2. Checked in order, first match
// wins; an unrecognized raw state classifies as Down and logs a warning
// — CTT never auto-offlines a node purely because its raw state wasn't
// recognized.
func Classify(rawState string, hasJobs bool) types.TargetStatus {
	switch {
	case strings.Contains(rawState, "offline"):
		if hasJobs {
			return types.StatusDraining
		}
		return types.StatusOffline
	case strings.Contains(rawState, "down"):
		if hasJobs {
			return types.StatusDraining
		}
		return types.StatusDown
	case strings.Contains(rawState, "exclusive"):
		return types.StatusOnline
	case rawState == "job-busy", rawState == "free":
		return types.StatusOnline
	default:
		log.Printf("scheduler: unrecognized raw node state %q, treating as Down", rawState)
		return types.StatusDown
	}
}

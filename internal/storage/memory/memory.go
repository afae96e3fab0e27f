// Package memory is an in-process Storage implementation used by tests. It
// keeps the same transactional boundaries as the sqlite backend (an
// Issue's status/field change and its documenting Comments are applied
// together under a single mutex), just without durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

// Store is a mutex-guarded, in-memory Storage.
type Store struct {
	mu sync.Mutex

	nextTargetID int64
	nextIssueID  int64
	nextComment  int64

	targets  map[int64]*types.Target
	byName   map[string]int64
	issues   map[int64]*types.Issue
	comments map[int64][]*types.Comment // keyed by issue ID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		targets:  make(map[int64]*types.Target),
		byName:   make(map[string]int64),
		issues:   make(map[int64]*types.Issue),
		comments: make(map[int64][]*types.Comment),
	}
}

func cloneTarget(t *types.Target) *types.Target {
	c := *t
	return &c
}

func cloneIssue(i *types.Issue) *types.Issue {
	c := *i
	if i.ToOffline != nil {
		v := *i.ToOffline
		c.ToOffline = &v
	}
	return &c
}

func (s *Store) GetTargetByName(_ context.Context, name string) (*types.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", name, storage.ErrNotFound)
	}
	return cloneTarget(s.targets[id]), nil
}

func (s *Store) EnsureTarget(_ context.Context, name string) (*types.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byName[name]; ok {
		return cloneTarget(s.targets[id]), nil
	}
	s.nextTargetID++
	t := &types.Target{ID: s.nextTargetID, Name: name, Status: types.StatusOnline}
	s.targets[t.ID] = t
	s.byName[name] = t.ID
	return cloneTarget(t), nil
}

func (s *Store) AllTargets(_ context.Context) ([]*types.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, cloneTarget(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SetTargetStatus(_ context.Context, targetID int64, status types.TargetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return fmt.Errorf("target id %d: %w", targetID, storage.ErrNotFound)
	}
	t.Status = status
	return nil
}

func (s *Store) FindIssue(_ context.Context, id int64) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue id %d: %w", id, storage.ErrNotFound)
	}
	return cloneIssue(i), nil
}

func (s *Store) IssuesForTarget(_ context.Context, targetID int64, filter types.IssueFilter) ([]*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Issue
	for _, i := range s.issues {
		if i.TargetID != targetID {
			continue
		}
		f := filter
		f.TargetID = nil
		if !f.Matches(i) {
			continue
		}
		out = append(out, cloneIssue(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) FindIssues(_ context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Issue
	for _, i := range s.issues {
		if !filter.Matches(i) {
			continue
		}
		out = append(out, cloneIssue(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) appendComments(issueID int64, comments []storage.NewComment, at time.Time) {
	for _, c := range comments {
		s.nextComment++
		s.comments[issueID] = append(s.comments[issueID], &types.Comment{
			ID:        s.nextComment,
			IssueID:   issueID,
			CreatedBy: c.CreatedBy,
			CreatedAt: at,
			Comment:   c.Comment,
		})
	}
}

func (s *Store) CreateIssue(_ context.Context, issue *types.Issue, comments []storage.NewComment) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[issue.TargetID]; !ok {
		return nil, fmt.Errorf("create issue: target id %d: %w", issue.TargetID, storage.ErrInvalidIssue)
	}
	s.nextIssueID++
	stored := cloneIssue(issue)
	stored.ID = s.nextIssueID
	s.issues[stored.ID] = stored
	s.appendComments(stored.ID, comments, stored.CreatedAt)
	return cloneIssue(stored), nil
}

func (s *Store) UpdateIssue(_ context.Context, issue *types.Issue, comments []storage.NewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; !ok {
		return fmt.Errorf("update issue id %d: %w", issue.ID, storage.ErrNotFound)
	}
	s.issues[issue.ID] = cloneIssue(issue)
	s.appendComments(issue.ID, comments, issue.UpdatedAt)
	return nil
}

func (s *Store) SetIssueStatus(_ context.Context, issueID int64, status types.IssueStatus, comments []storage.NewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.issues[issueID]
	if !ok {
		return fmt.Errorf("set status on issue id %d: %w", issueID, storage.ErrNotFound)
	}
	i.Status = status
	i.UpdatedAt = time.Now()
	s.appendComments(issueID, comments, i.UpdatedAt)
	return nil
}

func (s *Store) CommentsForIssue(_ context.Context, issueID int64) ([]*types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.comments[issueID]
	out := make([]*types.Comment, len(src))
	for i, c := range src {
		cc := *c
		out[i] = &cc
	}
	return out, nil
}

var _ storage.Storage = (*Store)(nil)

// Package api is the seam spec.md §1/§6 describes but leaves
// unimplemented: a Service wrapping the Mutation Engine and Storage with
// plain Go methods, which an (unspecified) GraphQL/HTTP transport would
// call for the /api endpoint's Query and Mutation fields. No HTTP or
// GraphQL server is implemented here.
package api

import (
	"context"
	"fmt"

	"github.com/NCAR/ctt-server/internal/mutation"
	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

// Service is the query/mutation boundary spec.md §6's POST /api would
// dispatch into.
type Service struct {
	store     storage.Storage
	mutations *mutation.Engine
}

// New builds a Service.
func New(store storage.Storage, mutations *mutation.Engine) *Service {
	return &Service{store: store, mutations: mutations}
}

// Issue resolves the GraphQL `issue(id)` query.
func (s *Service) Issue(ctx context.Context, id int64) (*types.Issue, error) {
	issue, err := s.store.FindIssue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("issue %d: %w", id, err)
	}
	return issue, nil
}

// Issues resolves the GraphQL `issues(status?, target?)` query.
func (s *Service) Issues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	issues, err := s.store.FindIssues(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("issues: %w", err)
	}
	return issues, nil
}

// Comments resolves the `comments` nested field on Issue.
func (s *Service) Comments(ctx context.Context, issueID int64) ([]*types.Comment, error) {
	comments, err := s.store.CommentsForIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("comments for issue %d: %w", issueID, err)
	}
	return comments, nil
}

// Target resolves the `target` nested field on Issue.
func (s *Service) Target(ctx context.Context, targetID int64) (*types.Target, error) {
	targets, err := s.store.AllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("target %d: %w", targetID, err)
	}
	for _, t := range targets {
		if t.ID == targetID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("target %d: %w", targetID, storage.ErrNotFound)
}

// Open resolves the GraphQL `open(NewIssue)` mutation.
func (s *Service) Open(ctx context.Context, in mutation.NewIssue, operator string) (*types.Issue, error) {
	return s.mutations.Open(ctx, in, operator)
}

// Close resolves the GraphQL `close(id, comment)` mutation.
func (s *Service) Close(ctx context.Context, issueID int64, operator, comment string) error {
	return s.mutations.Close(ctx, issueID, operator, comment)
}

// UpdateIssue resolves the GraphQL `updateIssue(UpdateIssue)` mutation.
func (s *Service) UpdateIssue(ctx context.Context, issueID int64, spec mutation.UpdateSpec, operator string) (*types.Issue, error) {
	return s.mutations.Update(ctx, issueID, spec, operator)
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

// newTestStore opens a file-based store under a fresh temp dir. File-based
// rather than ":memory:" so MaxOpenConns(1) behaves the same as production.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/ctt.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureTargetCreatesOnline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0001")
	require.NoError(t, err)
	require.Equal(t, "gu0001", tgt.Name)
	require.Equal(t, types.StatusOnline, tgt.Status)

	again, err := s.EnsureTarget(ctx, "gu0001")
	require.NoError(t, err)
	require.Equal(t, tgt.ID, again.ID)
}

func TestGetTargetByNameNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTargetByName(context.Background(), "gu9999")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetTargetStatusRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0002")
	require.NoError(t, err)

	require.NoError(t, s.SetTargetStatus(ctx, tgt.ID, types.StatusDraining))

	got, err := s.GetTargetByName(ctx, "gu0002")
	require.NoError(t, err)
	require.Equal(t, types.StatusDraining, got.Status)
}

func TestAllTargetsOrderedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"gu0003", "gu0001", "gu0002"} {
		_, err := s.EnsureTarget(ctx, name)
		require.NoError(t, err)
	}

	all, err := s.AllTargets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"gu0001", "gu0002", "gu0003"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestCreateIssueRejectsUnknownTarget(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateIssue(context.Background(), &types.Issue{TargetID: 999, Title: "x"}, nil)
	require.ErrorIs(t, err, storage.ErrInvalidIssue)
}

func TestCreateIssueWritesCommentsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0004")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	issue := &types.Issue{
		TargetID:  tgt.ID,
		Title:     "fan failure",
		CreatedBy: "opA",
		CreatedAt: now,
		UpdatedAt: now,
		Status:    types.StatusIssueOpening,
	}
	created, err := s.CreateIssue(ctx, issue, []storage.NewComment{
		{CreatedBy: "opA", Comment: "opening ticket"},
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	comments, err := s.CommentsForIssue(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "opening ticket", comments[0].Comment)

	fetched, err := s.FindIssue(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "fan failure", fetched.Title)
	require.Nil(t, fetched.ToOffline)
}

func TestIssueToOfflineRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0005")
	require.NoError(t, err)

	scope := types.ToOfflineCard
	now := time.Now()
	created, err := s.CreateIssue(ctx, &types.Issue{
		TargetID:  tgt.ID,
		Title:     "card fault",
		CreatedAt: now,
		UpdatedAt: now,
		ToOffline: &scope,
		Status:    types.StatusIssueOpening,
	}, nil)
	require.NoError(t, err)

	fetched, err := s.FindIssue(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.ToOffline)
	require.Equal(t, types.ToOfflineCard, *fetched.ToOffline)
}

func TestSetIssueStatusUpdatesTimestampAndAppendsComment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0006")
	require.NoError(t, err)

	now := time.Now()
	created, err := s.CreateIssue(ctx, &types.Issue{
		TargetID:  tgt.ID,
		Title:     "needs closing",
		CreatedAt: now,
		UpdatedAt: now,
		Status:    types.StatusIssueOpen,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetIssueStatus(ctx, created.ID, types.StatusIssueClosing, []storage.NewComment{
		{CreatedBy: "opB", Comment: "resolved"},
	}))

	fetched, err := s.FindIssue(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusIssueClosing, fetched.Status)
	require.True(t, fetched.UpdatedAt.After(now) || fetched.UpdatedAt.Equal(now))

	comments, err := s.CommentsForIssue(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
}

func TestIssuesForTargetFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt, err := s.EnsureTarget(ctx, "gu0007")
	require.NoError(t, err)

	now := time.Now()
	open, err := s.CreateIssue(ctx, &types.Issue{TargetID: tgt.ID, Title: "a", CreatedAt: now, UpdatedAt: now, Status: types.StatusIssueOpen}, nil)
	require.NoError(t, err)
	_, err = s.CreateIssue(ctx, &types.Issue{TargetID: tgt.ID, Title: "b", CreatedAt: now, UpdatedAt: now, Status: types.StatusIssueClosed}, nil)
	require.NoError(t, err)

	got, err := s.IssuesForTarget(ctx, tgt.ID, types.IssueFilter{Status: []types.IssueStatus{types.StatusIssueOpen}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, open.ID, got[0].ID)
}

func TestUpdateIssueNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateIssue(context.Background(), &types.Issue{ID: 404, Title: "ghost"}, nil)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

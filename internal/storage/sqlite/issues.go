package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

// encodeToOffline and decodeToOffline map the optional ToOffline scope
// onto a nullable TEXT column: empty string means NULL/no scope.
func encodeToOffline(t *types.ToOffline) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}

func decodeToOffline(ns sql.NullString) *types.ToOffline {
	if !ns.Valid {
		return nil
	}
	v := types.ToOffline(ns.String)
	return &v
}

func scanIssue(row interface {
	Scan(dest ...any) error
}) (*types.Issue, error) {
	var i types.Issue
	var status string
	var toOfflineNull sql.NullString
	if err := row.Scan(&i.ID, &i.TargetID, &i.Title, &i.Description, &i.CreatedBy,
		&i.AssignedTo, &i.CreatedAt, &i.UpdatedAt, &toOfflineNull, &status); err != nil {
		return nil, err
	}
	i.Status = types.IssueStatus(status)
	i.ToOffline = decodeToOffline(toOfflineNull)
	return &i, nil
}

const issueColumns = `id, target_id, title, description, created_by, assigned_to, created_at, updated_at, to_offline, status`

func (s *Store) FindIssue(ctx context.Context, id int64) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issue WHERE id = ?`, id)
	i, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("issue id %d", id), err)
	}
	return i, nil
}

func (s *Store) queryIssues(ctx context.Context, query string, args ...any) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query issues", err)
	}
	defer rows.Close()

	var out []*types.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, wrapDBError("query issues", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("query issues", err)
	}
	return out, nil
}

// filterInGo applies the parts of types.IssueFilter that do not map
// cleanly onto SQL (Status is a slice; Title is an exact, case-sensitive
// match per types.IssueFilter.Matches) after an initial narrowing query.
func filterInGo(issues []*types.Issue, filter types.IssueFilter) []*types.Issue {
	var out []*types.Issue
	for _, i := range issues {
		if !filter.Matches(i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (s *Store) IssuesForTarget(ctx context.Context, targetID int64, filter types.IssueFilter) ([]*types.Issue, error) {
	issues, err := s.queryIssues(ctx, `SELECT `+issueColumns+` FROM issue WHERE target_id = ? ORDER BY id ASC`, targetID)
	if err != nil {
		return nil, err
	}
	f := filter
	f.TargetID = nil
	return filterInGo(issues, f), nil
}

func (s *Store) FindIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	issues, err := s.queryIssues(ctx, `SELECT `+issueColumns+` FROM issue ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return filterInGo(issues, filter), nil
}

func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue, comments []storage.NewComment) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("create issue", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM target WHERE id = ?`, issue.TargetID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("create issue: target id %d: %w", issue.TargetID, storage.ErrInvalidIssue)
		}
		return nil, wrapDBError("create issue", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO issue (target_id, title, description, created_by, assigned_to, created_at, updated_at, to_offline, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.TargetID, issue.Title, issue.Description, issue.CreatedBy, issue.AssignedTo,
		issue.CreatedAt, issue.UpdatedAt, encodeToOffline(issue.ToOffline), string(issue.Status))
	if err != nil {
		return nil, wrapDBError("create issue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError("create issue", err)
	}

	if err := insertComments(ctx, tx, id, comments, issue.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("create issue", err)
	}

	stored := *issue
	stored.ID = id
	return &stored, nil
}

func (s *Store) UpdateIssue(ctx context.Context, issue *types.Issue, comments []storage.NewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("update issue", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE issue SET title = ?, description = ?, assigned_to = ?, updated_at = ?, to_offline = ?, status = ? WHERE id = ?`,
		issue.Title, issue.Description, issue.AssignedTo, issue.UpdatedAt, encodeToOffline(issue.ToOffline), string(issue.Status), issue.ID)
	if err != nil {
		return wrapDBError(fmt.Sprintf("update issue id %d", issue.ID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(fmt.Sprintf("update issue id %d", issue.ID), err)
	}
	if n == 0 {
		return fmt.Errorf("issue id %d: %w", issue.ID, storage.ErrNotFound)
	}

	if err := insertComments(ctx, tx, issue.ID, comments, issue.UpdatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(fmt.Sprintf("update issue id %d", issue.ID), err)
	}
	return nil
}

func (s *Store) SetIssueStatus(ctx context.Context, issueID int64, status types.IssueStatus, comments []storage.NewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("set issue status", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `UPDATE issue SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, issueID)
	if err != nil {
		return wrapDBError(fmt.Sprintf("set status on issue id %d", issueID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(fmt.Sprintf("set status on issue id %d", issueID), err)
	}
	if n == 0 {
		return fmt.Errorf("issue id %d: %w", issueID, storage.ErrNotFound)
	}

	if err := insertComments(ctx, tx, issueID, comments, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(fmt.Sprintf("set status on issue id %d", issueID), err)
	}
	return nil
}

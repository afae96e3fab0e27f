package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

// insertComments writes comments against issueID inside tx, stamping each
// with at. Called from within the issue-mutation transactions so the
// issue row and its documenting comments commit atomically.
func insertComments(ctx context.Context, tx *sql.Tx, issueID int64, comments []storage.NewComment, at time.Time) error {
	for _, c := range comments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO comment (issue_id, created_by, created_at, comment) VALUES (?, ?, ?, ?)`,
			issueID, c.CreatedBy, at, c.Comment); err != nil {
			return wrapDBError(fmt.Sprintf("insert comment on issue id %d", issueID), err)
		}
	}
	return nil
}

func (s *Store) CommentsForIssue(ctx context.Context, issueID int64) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, issue_id, created_by, created_at, comment FROM comment WHERE issue_id = ? ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("comments for issue id %d", issueID), err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.CreatedBy, &c.CreatedAt, &c.Comment); err != nil {
			return nil, wrapDBError(fmt.Sprintf("comments for issue id %d", issueID), err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(fmt.Sprintf("comments for issue id %d", issueID), err)
	}
	return out, nil
}

var _ storage.Storage = (*Store)(nil)

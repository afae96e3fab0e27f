package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NCAR/ctt-server/internal/storage"
	"github.com/NCAR/ctt-server/internal/types"
)

func scanTarget(row *sql.Row) (*types.Target, error) {
	var t types.Target
	var status string
	if err := row.Scan(&t.ID, &t.Name, &status); err != nil {
		return nil, err
	}
	t.Status = types.TargetStatus(status)
	return &t, nil
}

func (s *Store) GetTargetByName(ctx context.Context, name string) (*types.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, status FROM target WHERE name = ?`, name)
	t, err := scanTarget(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("target %s", name), err)
	}
	return t, nil
}

func (s *Store) EnsureTarget(ctx context.Context, name string) (*types.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, name, status FROM target WHERE name = ?`, name)
	t, err := scanTarget(row)
	if err == nil {
		return t, nil
	}
	if err != sql.ErrNoRows {
		return nil, wrapDBError(fmt.Sprintf("ensure target %s", name), err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO target (name, status) VALUES (?, ?)`, name, types.StatusOnline)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("insert target %s", name), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("insert target %s", name), err)
	}
	return &types.Target{ID: id, Name: name, Status: types.StatusOnline}, nil
}

func (s *Store) AllTargets(ctx context.Context) ([]*types.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status FROM target ORDER BY name ASC`)
	if err != nil {
		return nil, wrapDBError("list targets", err)
	}
	defer rows.Close()

	var out []*types.Target
	for rows.Next() {
		var t types.Target
		var status string
		if err := rows.Scan(&t.ID, &t.Name, &status); err != nil {
			return nil, wrapDBError("list targets", err)
		}
		t.Status = types.TargetStatus(status)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list targets", err)
	}
	return out, nil
}

func (s *Store) SetTargetStatus(ctx context.Context, targetID int64, status types.TargetStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE target SET status = ? WHERE id = ?`, string(status), targetID)
	if err != nil {
		return wrapDBError(fmt.Sprintf("set status for target id %d", targetID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(fmt.Sprintf("set status for target id %d", targetID), err)
	}
	if n == 0 {
		return fmt.Errorf("target id %d: %w", targetID, storage.ErrNotFound)
	}
	return nil
}

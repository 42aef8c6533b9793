package repo

import (
	"context"
	"database/sql"
	"time"

	"assetline/internal/domain"
)

func (r Repo) UpsertAssignment(ctx context.Context, hubID int64, actorID, duty string) (domain.Assignment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()
	a, err := r.UpsertAssignmentTx(ctx, tx, hubID, actorID, duty)
	if err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

func (r Repo) UpsertAssignmentTx(ctx context.Context, tx *sql.Tx, hubID int64, actorID, duty string) (domain.Assignment, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Assignment{}, err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO assignments(hub_id, actor_id, duty, created_at, updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(hub_id, actor_id) DO UPDATE SET duty=excluded.duty, updated_at=excluded.updated_at`,
		hubID, actorID, duty, now, now)
	if err != nil {
		return domain.Assignment{}, err
	}
	return r.GetAssignmentTx(ctx, tx, hubID, actorID)
}

func (r Repo) GetAssignment(ctx context.Context, hubID int64, actorID string) (domain.Assignment, error) {
	var a domain.Assignment
	err := r.DB.QueryRowContext(ctx, `SELECT hub_id, actor_id, duty, created_at, updated_at FROM assignments WHERE hub_id=? AND actor_id=?`,
		hubID, actorID).Scan(&a.HubID, &a.ActorID, &a.Duty, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, hubID int64, actorID string) (domain.Assignment, error) {
	var a domain.Assignment
	err := tx.QueryRowContext(ctx, `SELECT hub_id, actor_id, duty, created_at, updated_at FROM assignments WHERE hub_id=? AND actor_id=?`,
		hubID, actorID).Scan(&a.HubID, &a.ActorID, &a.Duty, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAssignments(ctx context.Context, hubID int64, actorID string) ([]domain.Assignment, error) {
	query := `SELECT hub_id, actor_id, duty, created_at, updated_at FROM assignments`
	var clauses []string
	var args []any
	if hubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, hubID)
	}
	if actorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, actorID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY hub_id ASC, actor_id ASC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.HubID, &a.ActorID, &a.Duty, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAssignment(ctx context.Context, hubID int64, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM assignments WHERE hub_id=? AND actor_id=?`, hubID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAssignmentTx(ctx context.Context, tx *sql.Tx, hubID int64, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE hub_id=? AND actor_id=?`, hubID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

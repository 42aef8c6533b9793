package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

func (r Repo) InsertScopeTx(ctx context.Context, tx *sql.Tx, s domain.Scope) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reo_scopes(id,task_id,vendor_id,description,cost,scheduled_for,completed_on,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, nullableStringPtr(s.VendorID), s.Description, s.Cost.String(), nullableStringPtr(s.ScheduledFor), nullableStringPtr(s.CompletedOn), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateScopeTx(ctx context.Context, tx *sql.Tx, s domain.Scope) error {
	_, err := tx.ExecContext(ctx, `UPDATE reo_scopes SET vendor_id=?, description=?, cost=?, scheduled_for=?, completed_on=?, updated_at=? WHERE id=?`,
		nullableStringPtr(s.VendorID), s.Description, s.Cost.String(), nullableStringPtr(s.ScheduledFor), nullableStringPtr(s.CompletedOn), s.UpdatedAt, s.ID)
	return err
}

func (r Repo) GetScope(ctx context.Context, id string) (domain.Scope, error) {
	var s domain.Scope
	var cost string
	var vendorID, scheduledFor, completedOn sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,vendor_id,description,cost,scheduled_for,completed_on,created_at,updated_at FROM reo_scopes WHERE id=?`, id).
		Scan(&s.ID, &s.TaskID, &vendorID, &s.Description, &cost, &scheduledFor, &completedOn, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.Cost, err = parseDecimalText(cost); err != nil {
		return s, err
	}
	if vendorID.Valid {
		s.VendorID = &vendorID.String
	}
	if scheduledFor.Valid {
		s.ScheduledFor = &scheduledFor.String
	}
	if completedOn.Valid {
		s.CompletedOn = &completedOn.String
	}
	return s, nil
}

func (r Repo) GetScopeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Scope, error) {
	var s domain.Scope
	var cost string
	var vendorID, scheduledFor, completedOn sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,task_id,vendor_id,description,cost,scheduled_for,completed_on,created_at,updated_at FROM reo_scopes WHERE id=?`, id).
		Scan(&s.ID, &s.TaskID, &vendorID, &s.Description, &cost, &scheduledFor, &completedOn, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.Cost, err = parseDecimalText(cost); err != nil {
		return s, err
	}
	if vendorID.Valid {
		s.VendorID = &vendorID.String
	}
	if scheduledFor.Valid {
		s.ScheduledFor = &scheduledFor.String
	}
	if completedOn.Valid {
		s.CompletedOn = &completedOn.String
	}
	return s, nil
}

type ScopeFilters struct {
	TaskID          string
	HubID           int64
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListScopes(ctx context.Context, f ScopeFilters) ([]domain.Scope, error) {
	var clauses []string
	var args []any
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.HubID > 0 {
		clauses = append(clauses, "task_id IN (SELECT t.id FROM tasks t JOIN outcomes o ON o.id=t.outcome_id WHERE o.hub_id=?)")
		args = append(args, f.HubID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,task_id,vendor_id,description,cost,scheduled_for,completed_on,created_at,updated_at FROM reo_scopes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Scope
	for rows.Next() {
		var s domain.Scope
		var cost string
		var vendorID, scheduledFor, completedOn sql.NullString
		if err := rows.Scan(&s.ID, &s.TaskID, &vendorID, &s.Description, &cost, &scheduledFor, &completedOn, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if s.Cost, err = parseDecimalText(cost); err != nil {
			return nil, err
		}
		if vendorID.Valid {
			s.VendorID = &vendorID.String
		}
		if scheduledFor.Valid {
			s.ScheduledFor = &scheduledFor.String
		}
		if completedOn.Valid {
			s.CompletedOn = &completedOn.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteScopeTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM reo_scopes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

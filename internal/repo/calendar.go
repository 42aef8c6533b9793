package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

func (r Repo) InsertCalendarEventTx(ctx context.Context, tx *sql.Tx, ce domain.CalendarEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO calendar_events(id,hub_id,kind,body,outcome_track,task_id,due_on,assignee_id,done,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ce.ID, ce.HubID, ce.Kind, ce.Body, nullableStringPtr(ce.OutcomeTrack), nullableStringPtr(ce.TaskID), nullableStringPtr(ce.DueOn), nullableStringPtr(ce.AssigneeID), boolToInt(ce.Done), ce.CreatedAt, ce.UpdatedAt)
	return err
}

func (r Repo) UpdateCalendarEventTx(ctx context.Context, tx *sql.Tx, ce domain.CalendarEvent) error {
	_, err := tx.ExecContext(ctx, `UPDATE calendar_events SET kind=?, body=?, outcome_track=?, task_id=?, due_on=?, assignee_id=?, done=?, updated_at=? WHERE id=?`,
		ce.Kind, ce.Body, nullableStringPtr(ce.OutcomeTrack), nullableStringPtr(ce.TaskID), nullableStringPtr(ce.DueOn), nullableStringPtr(ce.AssigneeID), boolToInt(ce.Done), ce.UpdatedAt, ce.ID)
	return err
}

func (r Repo) GetCalendarEvent(ctx context.Context, id string) (domain.CalendarEvent, error) {
	var ce domain.CalendarEvent
	var outcomeTrack, taskID, dueOn, assigneeID sql.NullString
	var done int
	err := r.DB.QueryRowContext(ctx, `SELECT id,hub_id,kind,body,outcome_track,task_id,due_on,assignee_id,done,created_at,updated_at FROM calendar_events WHERE id=?`, id).
		Scan(&ce.ID, &ce.HubID, &ce.Kind, &ce.Body, &outcomeTrack, &taskID, &dueOn, &assigneeID, &done, &ce.CreatedAt, &ce.UpdatedAt)
	if err == sql.ErrNoRows {
		return ce, ErrNotFound
	}
	if err != nil {
		return ce, err
	}
	ce.Done = done != 0
	if outcomeTrack.Valid {
		ce.OutcomeTrack = &outcomeTrack.String
	}
	if taskID.Valid {
		ce.TaskID = &taskID.String
	}
	if dueOn.Valid {
		ce.DueOn = &dueOn.String
	}
	if assigneeID.Valid {
		ce.AssigneeID = &assigneeID.String
	}
	return ce, nil
}

func (r Repo) GetCalendarEventTx(ctx context.Context, tx *sql.Tx, id string) (domain.CalendarEvent, error) {
	var ce domain.CalendarEvent
	var outcomeTrack, taskID, dueOn, assigneeID sql.NullString
	var done int
	err := tx.QueryRowContext(ctx, `SELECT id,hub_id,kind,body,outcome_track,task_id,due_on,assignee_id,done,created_at,updated_at FROM calendar_events WHERE id=?`, id).
		Scan(&ce.ID, &ce.HubID, &ce.Kind, &ce.Body, &outcomeTrack, &taskID, &dueOn, &assigneeID, &done, &ce.CreatedAt, &ce.UpdatedAt)
	if err == sql.ErrNoRows {
		return ce, ErrNotFound
	}
	if err != nil {
		return ce, err
	}
	ce.Done = done != 0
	if outcomeTrack.Valid {
		ce.OutcomeTrack = &outcomeTrack.String
	}
	if taskID.Valid {
		ce.TaskID = &taskID.String
	}
	if dueOn.Valid {
		ce.DueOn = &dueOn.String
	}
	if assigneeID.Valid {
		ce.AssigneeID = &assigneeID.String
	}
	return ce, nil
}

type CalendarFilters struct {
	HubID           int64
	Kind            string
	AssigneeID      string
	Done            *bool
	DueBefore       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListCalendarEvents(ctx context.Context, f CalendarFilters) ([]domain.CalendarEvent, error) {
	var clauses []string
	var args []any
	if f.HubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, f.HubID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Done != nil {
		clauses = append(clauses, "done=?")
		args = append(args, boolToInt(*f.Done))
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_on IS NOT NULL AND due_on <= ?")
		args = append(args, f.DueBefore)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,hub_id,kind,body,outcome_track,task_id,due_on,assignee_id,done,created_at,updated_at FROM calendar_events ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CalendarEvent
	for rows.Next() {
		var ce domain.CalendarEvent
		var outcomeTrack, taskID, dueOn, assigneeID sql.NullString
		var done int
		if err := rows.Scan(&ce.ID, &ce.HubID, &ce.Kind, &ce.Body, &outcomeTrack, &taskID, &dueOn, &assigneeID, &done, &ce.CreatedAt, &ce.UpdatedAt); err != nil {
			return nil, err
		}
		ce.Done = done != 0
		if outcomeTrack.Valid {
			ce.OutcomeTrack = &outcomeTrack.String
		}
		if taskID.Valid {
			ce.TaskID = &taskID.String
		}
		if dueOn.Valid {
			ce.DueOn = &dueOn.String
		}
		if assigneeID.Valid {
			ce.AssigneeID = &assigneeID.String
		}
		res = append(res, ce)
	}
	return res, rows.Err()
}

func (r Repo) DeleteCalendarEventTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"assetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const assetColumns = `hub_id,COALESCE(address,''),COALESCE(city,''),COALESCE(state,''),COALESCE(zip,''),COALESCE(property_type,''),COALESCE(loan_number,''),COALESCE(borrower_name,''),upb,total_debt,deferred_balance,as_is_value,arv_value,COALESCE(delinquency_status,''),created_at,updated_at`

func (r Repo) InsertAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assets(address,city,state,zip,property_type,loan_number,borrower_name,upb,total_debt,deferred_balance,as_is_value,arv_value,delinquency_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullable(a.Address), nullable(a.City), nullable(a.State), nullable(a.Zip), nullable(a.PropertyType), nullable(a.LoanNumber), nullable(a.BorrowerName),
		nullableDecimal(a.UPB), nullableDecimal(a.TotalDebt), nullableDecimal(a.DeferredBalance), nullableDecimal(a.AsIsValue), nullableDecimal(a.ARVValue),
		nullable(a.DelinquencyStatus), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET address=?,city=?,state=?,zip=?,property_type=?,loan_number=?,borrower_name=?,upb=?,total_debt=?,deferred_balance=?,as_is_value=?,arv_value=?,delinquency_status=?,updated_at=? WHERE hub_id=?`,
		nullable(a.Address), nullable(a.City), nullable(a.State), nullable(a.Zip), nullable(a.PropertyType), nullable(a.LoanNumber), nullable(a.BorrowerName),
		nullableDecimal(a.UPB), nullableDecimal(a.TotalDebt), nullableDecimal(a.DeferredBalance), nullableDecimal(a.AsIsValue), nullableDecimal(a.ARVValue),
		nullable(a.DelinquencyStatus), a.UpdatedAt, a.HubID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAsset(ctx context.Context, hubID int64) (domain.Asset, error) {
	var a domain.Asset
	var upb, totalDebt, deferred, asIs, arv sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE hub_id=?`, hubID).
		Scan(&a.HubID, &a.Address, &a.City, &a.State, &a.Zip, &a.PropertyType, &a.LoanNumber, &a.BorrowerName,
			&upb, &totalDebt, &deferred, &asIs, &arv, &a.DelinquencyStatus, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	return decodeAssetMoney(a, upb, totalDebt, deferred, asIs, arv)
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, hubID int64) (domain.Asset, error) {
	var a domain.Asset
	var upb, totalDebt, deferred, asIs, arv sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE hub_id=?`, hubID).
		Scan(&a.HubID, &a.Address, &a.City, &a.State, &a.Zip, &a.PropertyType, &a.LoanNumber, &a.BorrowerName,
			&upb, &totalDebt, &deferred, &asIs, &arv, &a.DelinquencyStatus, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	return decodeAssetMoney(a, upb, totalDebt, deferred, asIs, arv)
}

type AssetFilters struct {
	State             string
	PropertyType      string
	DelinquencyStatus string
	Limit             int
	CursorCreatedAt   string
	CursorHubID       int64
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	var clauses []string
	var args []any
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.PropertyType != "" {
		clauses = append(clauses, "property_type=?")
		args = append(args, f.PropertyType)
	}
	if f.DelinquencyStatus != "" {
		clauses = append(clauses, "delinquency_status=?")
		args = append(args, f.DelinquencyStatus)
	}
	if f.CursorCreatedAt != "" && f.CursorHubID > 0 {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND hub_id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorHubID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assetColumns + ` FROM assets ` + where + ` ORDER BY created_at DESC, hub_id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var upb, totalDebt, deferred, asIs, arv sql.NullString
		if err := rows.Scan(&a.HubID, &a.Address, &a.City, &a.State, &a.Zip, &a.PropertyType, &a.LoanNumber, &a.BorrowerName,
			&upb, &totalDebt, &deferred, &asIs, &arv, &a.DelinquencyStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a, err = decodeAssetMoney(a, upb, totalDebt, deferred, asIs, arv)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAssetTx(ctx context.Context, tx *sql.Tx, hubID int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE hub_id=?`, hubID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeAssetMoney(a domain.Asset, upb, totalDebt, deferred, asIs, arv sql.NullString) (domain.Asset, error) {
	var err error
	if a.UPB, err = parseNullDecimal(upb); err != nil {
		return a, err
	}
	if a.TotalDebt, err = parseNullDecimal(totalDebt); err != nil {
		return a, err
	}
	if a.DeferredBalance, err = parseNullDecimal(deferred); err != nil {
		return a, err
	}
	if a.AsIsValue, err = parseNullDecimal(asIs); err != nil {
		return a, err
	}
	if a.ARVValue, err = parseNullDecimal(arv); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) InsertOutcomeTx(ctx context.Context, tx *sql.Tx, o domain.Outcome) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO outcomes(id,hub_id,track,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.HubID, o.Track, o.Status, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOutcome(ctx context.Context, id string) (domain.Outcome, error) {
	var o domain.Outcome
	err := r.DB.QueryRowContext(ctx, `SELECT id,hub_id,track,status,created_at,updated_at FROM outcomes WHERE id=?`, id).
		Scan(&o.ID, &o.HubID, &o.Track, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) GetOutcomeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Outcome, error) {
	var o domain.Outcome
	err := tx.QueryRowContext(ctx, `SELECT id,hub_id,track,status,created_at,updated_at FROM outcomes WHERE id=?`, id).
		Scan(&o.ID, &o.HubID, &o.Track, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) GetOutcomeByTrack(ctx context.Context, hubID int64, track string) (domain.Outcome, error) {
	var o domain.Outcome
	err := r.DB.QueryRowContext(ctx, `SELECT id,hub_id,track,status,created_at,updated_at FROM outcomes WHERE hub_id=? AND track=?`, hubID, track).
		Scan(&o.ID, &o.HubID, &o.Track, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) GetOutcomeByTrackTx(ctx context.Context, tx *sql.Tx, hubID int64, track string) (domain.Outcome, error) {
	var o domain.Outcome
	err := tx.QueryRowContext(ctx, `SELECT id,hub_id,track,status,created_at,updated_at FROM outcomes WHERE hub_id=? AND track=?`, hubID, track).
		Scan(&o.ID, &o.HubID, &o.Track, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

type OutcomeFilters struct {
	HubID           int64
	Track           string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListOutcomes(ctx context.Context, f OutcomeFilters) ([]domain.Outcome, error) {
	var clauses []string
	var args []any
	if f.HubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, f.HubID)
	}
	if f.Track != "" {
		clauses = append(clauses, "track=?")
		args = append(args, f.Track)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,hub_id,track,status,created_at,updated_at FROM outcomes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.HubID, &o.Track, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOutcomeStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE outcomes SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOutcomeTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,outcome_id,task_type,status,assignee_id,notes,scheduled_for,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OutcomeID, t.TaskType, t.Status, nullableStringPtr(t.AssigneeID), nullable(t.Notes), nullableStringPtr(t.ScheduledFor), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET task_type=?, status=?, assignee_id=?, notes=?, scheduled_for=?, updated_at=? WHERE id=?`,
		t.TaskType, t.Status, nullableStringPtr(t.AssigneeID), nullable(t.Notes), nullableStringPtr(t.ScheduledFor), t.UpdatedAt, t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var assigneeID, notes, scheduledFor sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,outcome_id,task_type,status,assignee_id,notes,scheduled_for,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.OutcomeID, &t.TaskType, &t.Status, &assigneeID, &notes, &scheduledFor, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	if scheduledFor.Valid {
		t.ScheduledFor = &scheduledFor.String
	}
	return t, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	var t domain.Task
	var assigneeID, notes, scheduledFor sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,outcome_id,task_type,status,assignee_id,notes,scheduled_for,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.OutcomeID, &t.TaskType, &t.Status, &assigneeID, &notes, &scheduledFor, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	if scheduledFor.Valid {
		t.ScheduledFor = &scheduledFor.String
	}
	return t, nil
}

type TaskFilters struct {
	OutcomeID       string
	HubID           int64
	TaskType        string
	Status          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.OutcomeID != "" {
		clauses = append(clauses, "outcome_id=?")
		args = append(args, f.OutcomeID)
	}
	if f.HubID > 0 {
		clauses = append(clauses, "outcome_id IN (SELECT id FROM outcomes WHERE hub_id=?)")
		args = append(args, f.HubID)
	}
	if f.TaskType != "" {
		clauses = append(clauses, "task_type=?")
		args = append(args, f.TaskType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,outcome_id,task_type,status,assignee_id,notes,scheduled_for,created_at,updated_at FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var assigneeID, notes, scheduledFor sql.NullString
		if err := rows.Scan(&t.ID, &t.OutcomeID, &t.TaskType, &t.Status, &assigneeID, &notes, &scheduledFor, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if assigneeID.Valid {
			t.AssigneeID = &assigneeID.String
		}
		if notes.Valid {
			t.Notes = notes.String
		}
		if scheduledFor.Valid {
			t.ScheduledFor = &scheduledFor.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTasksByOutcomeTx returns all tasks for an outcome inside a transaction,
// oldest first.
func (r Repo) ListTasksByOutcomeTx(ctx context.Context, tx *sql.Tx, outcomeID string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,outcome_id,task_type,status,assignee_id,notes,scheduled_for,created_at,updated_at FROM tasks WHERE outcome_id=? ORDER BY created_at ASC, id ASC`, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var assigneeID, notes, scheduledFor sql.NullString
		if err := rows.Scan(&t.ID, &t.OutcomeID, &t.TaskType, &t.Status, &assigneeID, &notes, &scheduledFor, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if assigneeID.Valid {
			t.AssigneeID = &assigneeID.String
		}
		if notes.Valid {
			t.Notes = notes.String
		}
		if scheduledFor.Valid {
			t.ScheduledFor = &scheduledFor.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, outcomeID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE outcome_id=? GROUP BY status`, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, hubID int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, hubID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, hubID int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if hubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, hubID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,hub_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, hubID int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if hubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, hubID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,hub_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, scoped to a hub when hubID > 0.
func (r Repo) LatestEventID(ctx context.Context, hubID int64) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if hubID > 0 {
		query += ` WHERE hub_id=?`
		args = append(args, hubID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var e domain.Event
	var hubID sql.NullInt64
	var entityID, payload sql.NullString
	if err := rows.Scan(&e.ID, &e.TS, &e.Type, &hubID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
		return e, err
	}
	if hubID.Valid {
		e.HubID = hubID.Int64
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse decimal %q: %w", v.String, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func parseDecimalText(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", v, err)
	}
	return d, nil
}

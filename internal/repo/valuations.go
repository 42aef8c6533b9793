package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

func (r Repo) CreateValuation(ctx context.Context, v domain.Valuation) (domain.Valuation, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Valuation{}, err
	}
	defer tx.Rollback()
	created, err := r.CreateValuationTx(ctx, tx, v)
	if err != nil {
		return domain.Valuation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Valuation{}, err
	}
	return created, nil
}

func (r Repo) CreateValuationTx(ctx context.Context, tx *sql.Tx, v domain.Valuation) (domain.Valuation, error) {
	_, err := tx.ExecContext(ctx, `INSERT INTO valuations(id, hub_id, kind, value, as_of, source, notes, created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		v.ID, v.HubID, v.Kind, v.Value.String(), v.AsOf, nullable(v.Source), nullable(v.Notes), v.CreatedAt)
	if err != nil {
		return domain.Valuation{}, err
	}
	return v, nil
}

func (r Repo) GetValuation(ctx context.Context, id string) (domain.Valuation, error) {
	var v domain.Valuation
	var value string
	var source, notes sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, hub_id, kind, value, as_of, source, notes, created_at FROM valuations WHERE id=?`, id).
		Scan(&v.ID, &v.HubID, &v.Kind, &value, &v.AsOf, &source, &notes, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if v.Value, err = parseDecimalText(value); err != nil {
		return v, err
	}
	if source.Valid {
		v.Source = source.String
	}
	if notes.Valid {
		v.Notes = notes.String
	}
	return v, nil
}

type ValuationFilters struct {
	HubID int64
	Kind  string
	Limit int
}

func (r Repo) ListValuations(ctx context.Context, f ValuationFilters) ([]domain.Valuation, error) {
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
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id, hub_id, kind, value, as_of, source, notes, created_at FROM valuations ` + where + ` ORDER BY as_of DESC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Valuation
	for rows.Next() {
		var v domain.Valuation
		var value string
		var source, notes sql.NullString
		if err := rows.Scan(&v.ID, &v.HubID, &v.Kind, &value, &v.AsOf, &source, &notes, &v.CreatedAt); err != nil {
			return nil, err
		}
		if v.Value, err = parseDecimalText(value); err != nil {
			return nil, err
		}
		if source.Valid {
			v.Source = source.String
		}
		if notes.Valid {
			v.Notes = notes.String
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// LatestValuation returns the newest valuation of a kind for a hub by as_of date.
func (r Repo) LatestValuation(ctx context.Context, hubID int64, kind string) (domain.Valuation, error) {
	var v domain.Valuation
	var value string
	var source, notes sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, hub_id, kind, value, as_of, source, notes, created_at FROM valuations WHERE hub_id=? AND kind=? ORDER BY as_of DESC, created_at DESC, id DESC LIMIT 1`, hubID, kind).
		Scan(&v.ID, &v.HubID, &v.Kind, &value, &v.AsOf, &source, &notes, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if v.Value, err = parseDecimalText(value); err != nil {
		return v, err
	}
	if source.Valid {
		v.Source = source.String
	}
	if notes.Valid {
		v.Notes = notes.String
	}
	return v, nil
}

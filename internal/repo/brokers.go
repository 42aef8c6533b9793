package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

func (r Repo) InsertBroker(ctx context.Context, tx *sql.Tx, b domain.Broker) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO brokers(id,kind,name,firm,email,phone,market,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.Kind, b.Name, nullable(b.Firm), nullable(b.Email), nullable(b.Phone), nullable(b.Market), b.CreatedAt)
	return err
}

func (r Repo) UpdateBroker(ctx context.Context, tx *sql.Tx, b domain.Broker) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	res, err := exec(`UPDATE brokers SET kind=?, name=?, firm=?, email=?, phone=?, market=? WHERE id=?`,
		b.Kind, b.Name, nullable(b.Firm), nullable(b.Email), nullable(b.Phone), nullable(b.Market), b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetBroker(ctx context.Context, id string) (domain.Broker, error) {
	var b domain.Broker
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,name,COALESCE(firm,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(market,''),created_at FROM brokers WHERE id=?`, id).
		Scan(&b.ID, &b.Kind, &b.Name, &b.Firm, &b.Email, &b.Phone, &b.Market, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) GetBrokerTx(ctx context.Context, tx *sql.Tx, id string) (domain.Broker, error) {
	var b domain.Broker
	err := tx.QueryRowContext(ctx, `SELECT id,kind,name,COALESCE(firm,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(market,''),created_at FROM brokers WHERE id=?`, id).
		Scan(&b.ID, &b.Kind, &b.Name, &b.Firm, &b.Email, &b.Phone, &b.Market, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

type BrokerFilters struct {
	Kind            string
	Market          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListBrokers(ctx context.Context, f BrokerFilters) ([]domain.Broker, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Market != "" {
		clauses = append(clauses, "market=?")
		args = append(args, f.Market)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,kind,name,COALESCE(firm,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(market,''),created_at FROM brokers ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Broker
	for rows.Next() {
		var b domain.Broker
		if err := rows.Scan(&b.ID, &b.Kind, &b.Name, &b.Firm, &b.Email, &b.Phone, &b.Market, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) DeleteBroker(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM brokers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteBrokerTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM brokers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

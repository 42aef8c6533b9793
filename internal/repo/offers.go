package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

func (r Repo) InsertOfferTx(ctx context.Context, tx *sql.Tx, o domain.Offer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO offers(id,hub_id,source,status,price,buyer_name,broker_id,notes,received_on,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.HubID, o.Source, o.Status, o.Price.String(), nullable(o.BuyerName), nullableStringPtr(o.BrokerID), nullable(o.Notes), nullableStringPtr(o.ReceivedOn), o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) UpdateOfferTx(ctx context.Context, tx *sql.Tx, o domain.Offer) error {
	_, err := tx.ExecContext(ctx, `UPDATE offers SET source=?, status=?, price=?, buyer_name=?, broker_id=?, notes=?, received_on=?, updated_at=? WHERE id=?`,
		o.Source, o.Status, o.Price.String(), nullable(o.BuyerName), nullableStringPtr(o.BrokerID), nullable(o.Notes), nullableStringPtr(o.ReceivedOn), o.UpdatedAt, o.ID)
	return err
}

func (r Repo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	var o domain.Offer
	var price string
	var buyerName, brokerID, notes, receivedOn sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,hub_id,source,status,price,buyer_name,broker_id,notes,received_on,created_at,updated_at FROM offers WHERE id=?`, id).
		Scan(&o.ID, &o.HubID, &o.Source, &o.Status, &price, &buyerName, &brokerID, &notes, &receivedOn, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if o.Price, err = parseDecimalText(price); err != nil {
		return o, err
	}
	if buyerName.Valid {
		o.BuyerName = buyerName.String
	}
	if brokerID.Valid {
		o.BrokerID = &brokerID.String
	}
	if notes.Valid {
		o.Notes = notes.String
	}
	if receivedOn.Valid {
		o.ReceivedOn = &receivedOn.String
	}
	return o, nil
}

func (r Repo) GetOfferTx(ctx context.Context, tx *sql.Tx, id string) (domain.Offer, error) {
	var o domain.Offer
	var price string
	var buyerName, brokerID, notes, receivedOn sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,hub_id,source,status,price,buyer_name,broker_id,notes,received_on,created_at,updated_at FROM offers WHERE id=?`, id).
		Scan(&o.ID, &o.HubID, &o.Source, &o.Status, &price, &buyerName, &brokerID, &notes, &receivedOn, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if o.Price, err = parseDecimalText(price); err != nil {
		return o, err
	}
	if buyerName.Valid {
		o.BuyerName = buyerName.String
	}
	if brokerID.Valid {
		o.BrokerID = &brokerID.String
	}
	if notes.Valid {
		o.Notes = notes.String
	}
	if receivedOn.Valid {
		o.ReceivedOn = &receivedOn.String
	}
	return o, nil
}

type OfferFilters struct {
	HubID           int64
	Source          string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListOffers(ctx context.Context, f OfferFilters) ([]domain.Offer, error) {
	var clauses []string
	var args []any
	if f.HubID > 0 {
		clauses = append(clauses, "hub_id=?")
		args = append(args, f.HubID)
	}
	if f.Source != "" {
		clauses = append(clauses, "source=?")
		args = append(args, f.Source)
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
	query := `SELECT id,hub_id,source,status,price,buyer_name,broker_id,notes,received_on,created_at,updated_at FROM offers ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Offer
	for rows.Next() {
		var o domain.Offer
		var price string
		var buyerName, brokerID, notes, receivedOn sql.NullString
		if err := rows.Scan(&o.ID, &o.HubID, &o.Source, &o.Status, &price, &buyerName, &brokerID, &notes, &receivedOn, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if o.Price, err = parseDecimalText(price); err != nil {
			return nil, err
		}
		if buyerName.Valid {
			o.BuyerName = buyerName.String
		}
		if brokerID.Valid {
			o.BrokerID = &brokerID.String
		}
		if notes.Valid {
			o.Notes = notes.String
		}
		if receivedOn.Valid {
			o.ReceivedOn = &receivedOn.String
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) DeleteOfferTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM offers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasAcceptedOfferTx reports whether another accepted offer exists for the same
// hub and source.
func (r Repo) HasAcceptedOfferTx(ctx context.Context, tx *sql.Tx, hubID int64, source, excludeID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM offers WHERE hub_id=? AND source=? AND status='accepted' AND id != ? LIMIT 1`, hubID, source, excludeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/clubdesk/internal/model"
)

// PaymentRepo persists payment_intents.  The quote is stored as a JSON
// snapshot so later pricing changes never alter what the customer was
// charged.
type PaymentRepo struct{ db *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, lane_id, session_id, amount, status, quote, paid_by, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (model.PaymentIntent, error) {
	var p model.PaymentIntent
	var quote []byte
	if err := row.Scan(&p.ID, &p.LaneID, &p.SessionID, &p.Amount, &p.Status, &quote,
		&p.PaidBy, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if len(quote) > 0 {
		if err := json.Unmarshal(quote, &p.Quote); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p model.PaymentIntent) error {
	quote, err := json.Marshal(p.Quote)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO payment_intents ("+paymentColumns+") VALUES (?,?,?,?,?,?,?,?,?,?)",
		p.ID, p.LaneID, p.SessionID, p.Amount, p.Status, quote, p.PaidBy, utcPtr(p.PaidAt),
		utc(p.CreatedAt), utc(p.UpdatedAt))
	return err
}

func (r *PaymentRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (model.PaymentIntent, error) {
	return scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payment_intents WHERE id=? LIMIT 1", id))
}

// GetForUpdateTx locks the intent; mark-paid uses it to make repeated calls
// observe the first one's PAID status.
func (r *PaymentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.PaymentIntent, error) {
	return scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payment_intents WHERE id=? FOR UPDATE", id))
}

func (r *PaymentRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p model.PaymentIntent) error {
	quote, err := json.Marshal(p.Quote)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents
            SET amount=?, status=?, quote=?, paid_by=?, paid_at=?, updated_at=?
          WHERE id=?`,
		p.Amount, p.Status, quote, p.PaidBy, utcPtr(p.PaidAt), utc(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

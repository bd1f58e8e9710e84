package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/clubdesk/internal/model"
)

// CheckoutRepo persists kiosk checkout requests.
type CheckoutRepo struct{ db *sql.DB }

func NewCheckoutRepo(db *sql.DB) *CheckoutRepo { return &CheckoutRepo{db: db} }

const checkoutColumns = `id, occupancy_id, visit_id, customer_id, resource_id, resource_type, status, items,
       items_confirmed, late_minutes, late_fee, ban_applies, fee_paid, claimed_by, claim_expires_at,
       completed_at, created_at, updated_at`

func scanCheckout(row rowScanner) (model.CheckoutRequest, error) {
	var c model.CheckoutRequest
	var items []byte
	if err := row.Scan(&c.ID, &c.OccupancyID, &c.VisitID, &c.CustomerID, &c.ResourceID, &c.ResourceType,
		&c.Status, &items, &c.ItemsConfirmed, &c.LateMinutes, &c.LateFee, &c.BanApplies, &c.FeePaid,
		&c.ClaimedBy, &c.ClaimExpiresAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.Items = map[string]bool{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (r *CheckoutRepo) CreateTx(ctx context.Context, tx *sql.Tx, c model.CheckoutRequest) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO checkout_requests ("+checkoutColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		c.ID, c.OccupancyID, c.VisitID, c.CustomerID, c.ResourceID, c.ResourceType, c.Status, items,
		c.ItemsConfirmed, c.LateMinutes, c.LateFee, c.BanApplies, c.FeePaid, c.ClaimedBy, utcPtr(c.ClaimExpiresAt),
		utcPtr(c.CompletedAt), utc(c.CreatedAt), utc(c.UpdatedAt))
	return err
}

// GetForUpdateTx locks a request.  Claims are decided under this lock so
// two employees cannot both take the same request.
func (r *CheckoutRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.CheckoutRequest, error) {
	return scanCheckout(tx.QueryRowContext(ctx,
		"SELECT "+checkoutColumns+" FROM checkout_requests WHERE id=? FOR UPDATE", id))
}

// OpenByOccupancyTx returns the SUBMITTED or CLAIMED request for a block.
func (r *CheckoutRepo) OpenByOccupancyTx(ctx context.Context, tx *sql.Tx, occupancyID string) (model.CheckoutRequest, error) {
	return scanCheckout(tx.QueryRowContext(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_requests
          WHERE occupancy_id=? AND status IN ('SUBMITTED','CLAIMED')
          ORDER BY created_at DESC LIMIT 1`, occupancyID))
}

func (r *CheckoutRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c model.CheckoutRequest) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE checkout_requests
            SET status=?, items=?, items_confirmed=?, late_minutes=?, late_fee=?, ban_applies=?, fee_paid=?,
                claimed_by=?, claim_expires_at=?, completed_at=?, updated_at=?
          WHERE id=?`,
		c.Status, items, c.ItemsConfirmed, c.LateMinutes, c.LateFee, c.BanApplies, c.FeePaid,
		c.ClaimedBy, utcPtr(c.ClaimExpiresAt), utcPtr(c.CompletedAt), utc(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

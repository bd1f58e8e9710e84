package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
)

// WaitlistRepo persists upgrade waitlist entries.
type WaitlistRepo struct{ db *sql.DB }

func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

func (r *WaitlistRepo) CreateTx(ctx context.Context, tx *sql.Tx, w model.WaitlistEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist (id, visit_id, customer_id, desired_tier, backup_tier, status, created_at, updated_at)
         VALUES (?,?,?,?,?,?,?,?)`,
		w.ID, w.VisitID, w.CustomerID, w.DesiredTier, w.BackupTier, w.Status, utc(w.CreatedAt), utc(w.UpdatedAt))
	return err
}

// LiveByVisitTx returns the visit's ACTIVE or OFFERED entry.
func (r *WaitlistRepo) LiveByVisitTx(ctx context.Context, tx *sql.Tx, visitID string) (model.WaitlistEntry, error) {
	var w model.WaitlistEntry
	err := tx.QueryRowContext(ctx,
		`SELECT id, visit_id, customer_id, desired_tier, backup_tier, status, created_at, updated_at
           FROM waitlist WHERE visit_id=? AND status IN ('ACTIVE','OFFERED')
          ORDER BY created_at DESC LIMIT 1`, visitID).
		Scan(&w.ID, &w.VisitID, &w.CustomerID, &w.DesiredTier, &w.BackupTier, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// CancelByVisitTx cancels every live entry of a visit and returns how many
// were cancelled.
func (r *WaitlistRepo) CancelByVisitTx(ctx context.Context, tx *sql.Tx, visitID string, now time.Time) (int, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE waitlist SET status='CANCELLED', updated_at=?
          WHERE visit_id=? AND status IN ('ACTIVE','OFFERED')`, utc(now), visitID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountLiveTx counts live entries queued for a tier.
func (r *WaitlistRepo) CountLiveTx(ctx context.Context, tx *sql.Tx, tier model.RentalType) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM waitlist WHERE desired_tier=? AND status IN ('ACTIVE','OFFERED')", tier).Scan(&n)
	return n, err
}

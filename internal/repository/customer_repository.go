package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
)

// CustomerRepo reads and updates the customers table.  Customers are created
// by the registration desk, outside this service; the check-in core only
// resolves, locks and annotates them.
type CustomerRepo struct{ db *sql.DB }

func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `id, first_name, last_name, dob, membership_number, banned_until,
       past_due_balance, id_scan_hash, id_scan_value, notes, created_at, updated_at`

func scanCustomer(row rowScanner) (model.Customer, error) {
	var c model.Customer
	var notes sql.NullString
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.DOB, &c.MembershipNumber, &c.BannedUntil,
		&c.PastDueBalance, &c.IDScanHash, &c.IDScanValue, &notes, &c.CreatedAt, &c.UpdatedAt)
	c.Notes = notes.String
	return c, err
}

// GetTx fetches a customer by id.
func (r *CustomerRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (model.Customer, error) {
	return scanCustomer(tx.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE id=? LIMIT 1", id))
}

// GetForUpdateTx fetches a customer and locks the row until the transaction
// ends.  Used when a late fee or ban is about to be applied.
func (r *CustomerRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.Customer, error) {
	return scanCustomer(tx.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE id=? FOR UPDATE", id))
}

// FindByScanTx returns the customers whose stored scan hash matches.  When no
// hash matches, customers whose stored licence number matches scanValue are
// returned instead.
func (r *CustomerRepo) FindByScanTx(ctx context.Context, tx *sql.Tx, scanHash, scanValue string) ([]model.Customer, error) {
	out, err := r.queryTx(ctx, tx,
		"SELECT "+customerColumns+" FROM customers WHERE id_scan_hash=? ORDER BY id", scanHash)
	if err != nil || len(out) > 0 || scanValue == "" {
		return out, err
	}
	return r.queryTx(ctx, tx,
		"SELECT "+customerColumns+" FROM customers WHERE UPPER(id_scan_value)=? ORDER BY id",
		strings.ToUpper(scanValue))
}

func (r *CustomerRepo) queryTx(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]model.Customer, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateTx writes the mutable columns of a customer: ban, balance, scan
// identifiers and notes.
func (r *CustomerRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c model.Customer) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE customers
            SET banned_until=?, past_due_balance=?, id_scan_hash=?, id_scan_value=?, notes=?, updated_at=?
          WHERE id=?`,
		utcPtr(c.BannedUntil), c.PastDueBalance, c.IDScanHash, c.IDScanValue, c.Notes, time.Now().UTC(), c.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// expectRow reports sql.ErrNoRows when an UPDATE matched nothing.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
)

// VisitRepo covers visits and their checkin_blocks.  A visit is open while
// ended_at is NULL; a block is open while closed_at is NULL.
type VisitRepo struct{ db *sql.DB }

func NewVisitRepo(db *sql.DB) *VisitRepo { return &VisitRepo{db: db} }

const blockColumns = `id, visit_id, resource_id, resource_type, rental_type, session_id, starts_at, ends_at, closed_at`

func scanVisit(row rowScanner) (model.Visit, error) {
	var v model.Visit
	err := row.Scan(&v.ID, &v.CustomerID, &v.StartedAt, &v.EndedAt)
	return v, err
}

func scanBlock(row rowScanner) (model.OccupancyBlock, error) {
	var b model.OccupancyBlock
	err := row.Scan(&b.ID, &b.VisitID, &b.ResourceID, &b.ResourceType, &b.RentalType, &b.SessionID,
		&b.StartsAt, &b.EndsAt, &b.ClosedAt)
	return b, err
}

// OpenByCustomerTx returns the customer's open visit, if any.
func (r *VisitRepo) OpenByCustomerTx(ctx context.Context, tx *sql.Tx, customerID string) (model.Visit, error) {
	return scanVisit(tx.QueryRowContext(ctx,
		"SELECT id, customer_id, started_at, ended_at FROM visits WHERE customer_id=? AND ended_at IS NULL LIMIT 1",
		customerID))
}

// GetForUpdateTx locks a visit.  Checkout takes this lock first so that a
// repeated manual-complete observes ended_at set by the first one.
func (r *VisitRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.Visit, error) {
	return scanVisit(tx.QueryRowContext(ctx,
		"SELECT id, customer_id, started_at, ended_at FROM visits WHERE id=? FOR UPDATE", id))
}

func (r *VisitRepo) CreateTx(ctx context.Context, tx *sql.Tx, v model.Visit) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO visits (id, customer_id, started_at, ended_at) VALUES (?,?,?,?)",
		v.ID, v.CustomerID, utc(v.StartedAt), utcPtr(v.EndedAt))
	return err
}

func (r *VisitRepo) UpdateTx(ctx context.Context, tx *sql.Tx, v model.Visit) error {
	res, err := tx.ExecContext(ctx, "UPDATE visits SET ended_at=? WHERE id=?", utcPtr(v.EndedAt), v.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// ListBlocksTx returns a visit's blocks in start order.
func (r *VisitRepo) ListBlocksTx(ctx context.Context, tx *sql.Tx, visitID string) ([]model.OccupancyBlock, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+blockColumns+" FROM checkin_blocks WHERE visit_id=? ORDER BY starts_at", visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OccupancyBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *VisitRepo) GetBlockTx(ctx context.Context, tx *sql.Tx, id string) (model.OccupancyBlock, error) {
	return scanBlock(tx.QueryRowContext(ctx,
		"SELECT "+blockColumns+" FROM checkin_blocks WHERE id=? LIMIT 1", id))
}

// OpenBlockByResourceTx returns the open block with the latest end on a
// resource.
func (r *VisitRepo) OpenBlockByResourceTx(ctx context.Context, tx *sql.Tx, resourceID string) (model.OccupancyBlock, error) {
	return scanBlock(tx.QueryRowContext(ctx,
		"SELECT "+blockColumns+" FROM checkin_blocks WHERE resource_id=? AND closed_at IS NULL ORDER BY ends_at DESC LIMIT 1",
		resourceID))
}

func (r *VisitRepo) CreateBlockTx(ctx context.Context, tx *sql.Tx, b model.OccupancyBlock) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO checkin_blocks ("+blockColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		b.ID, b.VisitID, b.ResourceID, b.ResourceType, b.RentalType, b.SessionID,
		utc(b.StartsAt), utc(b.EndsAt), utcPtr(b.ClosedAt))
	return err
}

func (r *VisitRepo) UpdateBlockTx(ctx context.Context, tx *sql.Tx, b model.OccupancyBlock) error {
	res, err := tx.ExecContext(ctx, "UPDATE checkin_blocks SET ends_at=?, closed_at=? WHERE id=?",
		utc(b.EndsAt), utcPtr(b.ClosedAt), b.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// ScheduledEndsTx returns, per occupied resource of the tier, the latest
// scheduled end of its open blocks, earliest first.
func (r *VisitRepo) ScheduledEndsTx(ctx context.Context, tx *sql.Tx, tier model.RentalType) ([]time.Time, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT MAX(ends_at) FROM checkin_blocks
          WHERE rental_type=? AND closed_at IS NULL
          GROUP BY resource_id ORDER BY 1`, tier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

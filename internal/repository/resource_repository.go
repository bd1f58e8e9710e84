package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// ResourceRepo is the resource ledger over the rooms and lockers tables.
// Both tables share the same shape; lockers always carry tier LOCKER.
type ResourceRepo struct{ db *sql.DB }

func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

const resourceColumns = `id, number, tier, status, assigned_to, assigned_session_id, updated_at`

func tableFor(rt model.ResourceType) (string, error) {
	switch rt {
	case model.ResourceRoom:
		return "rooms", nil
	case model.ResourceLocker:
		return "lockers", nil
	}
	return "", fmt.Errorf("unknown resource type %q", rt)
}

func scanResource(row rowScanner, rt model.ResourceType) (model.Resource, error) {
	r := model.Resource{Type: rt}
	err := row.Scan(&r.ID, &r.Number, &r.Tier, &r.Status, &r.AssignedTo, &r.AssignedSessionID, &r.UpdatedAt)
	return r, err
}

// GetTx returns a resource without locking it.
func (r *ResourceRepo) GetTx(ctx context.Context, tx *sql.Tx, rt model.ResourceType, id string) (model.Resource, error) {
	table, err := tableFor(rt)
	if err != nil {
		return model.Resource{}, err
	}
	return scanResource(tx.QueryRowContext(ctx,
		"SELECT "+resourceColumns+" FROM "+table+" WHERE id=? LIMIT 1", id), rt)
}

// GetForUpdateTx locks the resource row for the rest of the transaction.
// Two lanes racing for the same room serialise here: the loser blocks until
// the winner commits and then observes assigned_to already set.
func (r *ResourceRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, rt model.ResourceType, id string) (model.Resource, error) {
	table, err := tableFor(rt)
	if err != nil {
		return model.Resource{}, err
	}
	return scanResource(tx.QueryRowContext(ctx,
		"SELECT "+resourceColumns+" FROM "+table+" WHERE id=? FOR UPDATE", id), rt)
}

// FindByNumberTx looks the printed number up in rooms first, then lockers.
func (r *ResourceRepo) FindByNumberTx(ctx context.Context, tx *sql.Tx, number string) (model.Resource, error) {
	number = strings.TrimSpace(number)
	for _, rt := range []model.ResourceType{model.ResourceRoom, model.ResourceLocker} {
		table, _ := tableFor(rt)
		res, err := scanResource(tx.QueryRowContext(ctx,
			"SELECT "+resourceColumns+" FROM "+table+" WHERE number=? LIMIT 1", number), rt)
		if err == nil {
			return res, nil
		}
		if err != sql.ErrNoRows {
			return model.Resource{}, err
		}
	}
	return model.Resource{}, sql.ErrNoRows
}

// UpdateTx writes status and assignment columns.
func (r *ResourceRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res model.Resource) error {
	table, err := tableFor(res.Type)
	if err != nil {
		return err
	}
	out, err := tx.ExecContext(ctx,
		"UPDATE "+table+" SET status=?, assigned_to=?, assigned_session_id=?, updated_at=? WHERE id=?",
		res.Status, res.AssignedTo, res.AssignedSessionID, time.Now().UTC(), res.ID)
	if err != nil {
		return err
	}
	return expectRow(out)
}

// CountTx aggregates both tables by tier and status.
func (r *ResourceRepo) CountTx(ctx context.Context, tx *sql.Tx) ([]store.InventoryCount, error) {
	const q = `SELECT tier, status, SUM(status='CLEAN' AND assigned_to IS NULL), COUNT(*)
                 FROM rooms GROUP BY tier, status
               UNION ALL
               SELECT tier, status, SUM(status='CLEAN' AND assigned_to IS NULL), COUNT(*)
                 FROM lockers GROUP BY tier, status
               ORDER BY 1, 2`
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.InventoryCount
	for rows.Next() {
		var c store.InventoryCount
		if err := rows.Scan(&c.Tier, &c.Status, &c.Available, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/clubdesk/internal/model"
)

// AuditRepo appends rows to audit_log.  Rows are never updated.
type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) InsertTx(ctx context.Context, tx *sql.Tx, a model.AuditRecord) error {
	var prev, next []byte
	if len(a.Previous) > 0 {
		prev = a.Previous
	}
	if len(a.Next) > 0 {
		next = a.Next
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, entity_type, entity_id, staff_id, previous_value, new_value, created_at)
         VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Action, a.EntityType, a.EntityID, a.StaffID, prev, next, utc(a.CreatedAt))
	return err
}

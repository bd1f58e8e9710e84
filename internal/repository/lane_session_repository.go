package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/clubdesk/internal/model"
)

// LaneSessionRepo persists the lane_sessions table: one row per physical
// lane, keyed by lane_id and rewritten in place as customers come and go.
type LaneSessionRepo struct{ db *sql.DB }

func NewLaneSessionRepo(db *sql.DB) *LaneSessionRepo { return &LaneSessionRepo{db: db} }

const laneColumns = `lane_id, session_id, status, staff_id, customer_id, customer_name, membership_number,
       desired_rental_type, backup_rental_type, waitlist_desired_type,
       proposed_rental_type, proposed_by, proposed_at,
       selection_confirmed, selection_confirmed_by, selection_locked_at,
       assigned_resource_id, assigned_resource_type, customer_confirmation_pending,
       payment_intent_id, signature, signed_at, past_due_bypass,
       checkin_mode, visit_id, renewal_hours, renewal_ends_at, candidate_ids,
       created_at, updated_at`

func scanLane(row rowScanner) (model.LaneSession, error) {
	var s model.LaneSession
	var name sql.NullString
	var candidates []byte
	err := row.Scan(&s.LaneID, &s.SessionID, &s.Status, &s.StaffID, &s.CustomerID, &name, &s.MembershipNumber,
		&s.DesiredRentalType, &s.BackupRentalType, &s.WaitlistDesiredType,
		&s.ProposedRentalType, &s.ProposedBy, &s.ProposedAt,
		&s.SelectionConfirmed, &s.SelectionConfirmedBy, &s.SelectionLockedAt,
		&s.AssignedResourceID, &s.AssignedResourceType, &s.CustomerConfirmationPending,
		&s.PaymentIntentID, &s.Signature, &s.SignedAt, &s.PastDueBypass,
		&s.CheckinMode, &s.VisitID, &s.RenewalHours, &s.RenewalEndsAt, &candidates,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.CustomerName = name.String
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &s.CandidateIDs); err != nil {
			return s, err
		}
	}
	return s, nil
}

// GetByLaneForUpdateTx locks and returns the lane's row.  Every lane
// transition starts here so that transitions on one lane are totally
// ordered.
func (r *LaneSessionRepo) GetByLaneForUpdateTx(ctx context.Context, tx *sql.Tx, laneID string) (model.LaneSession, error) {
	return scanLane(tx.QueryRowContext(ctx,
		"SELECT "+laneColumns+" FROM lane_sessions WHERE lane_id=? FOR UPDATE", laneID))
}

// GetBySessionForUpdateTx locks and returns the row currently carrying
// sessionID.  Used by payment callbacks that only know the session.
func (r *LaneSessionRepo) GetBySessionForUpdateTx(ctx context.Context, tx *sql.Tx, sessionID string) (model.LaneSession, error) {
	return scanLane(tx.QueryRowContext(ctx,
		"SELECT "+laneColumns+" FROM lane_sessions WHERE session_id=? FOR UPDATE", sessionID))
}

// FindActiveByCustomerTx locks and returns another lane whose unfinished
// session is bound to customerID.
func (r *LaneSessionRepo) FindActiveByCustomerTx(ctx context.Context, tx *sql.Tx, customerID, exceptLaneID string) (model.LaneSession, error) {
	return scanLane(tx.QueryRowContext(ctx,
		"SELECT "+laneColumns+` FROM lane_sessions
         WHERE customer_id=? AND lane_id<>? AND status NOT IN ('IDLE','COMPLETED','CANCELLED')
         LIMIT 1 FOR UPDATE`, customerID, exceptLaneID))
}

// SaveTx inserts the lane row or overwrites every column of an existing one.
func (r *LaneSessionRepo) SaveTx(ctx context.Context, tx *sql.Tx, s model.LaneSession) error {
	var candidates []byte
	if len(s.CandidateIDs) > 0 {
		b, err := jsonArg(s.CandidateIDs)
		if err != nil {
			return err
		}
		candidates = b
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO lane_sessions (`+laneColumns+`)
         VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
         ON DUPLICATE KEY UPDATE
           session_id=VALUES(session_id), status=VALUES(status), staff_id=VALUES(staff_id),
           customer_id=VALUES(customer_id), customer_name=VALUES(customer_name),
           membership_number=VALUES(membership_number),
           desired_rental_type=VALUES(desired_rental_type), backup_rental_type=VALUES(backup_rental_type),
           waitlist_desired_type=VALUES(waitlist_desired_type),
           proposed_rental_type=VALUES(proposed_rental_type), proposed_by=VALUES(proposed_by),
           proposed_at=VALUES(proposed_at), selection_confirmed=VALUES(selection_confirmed),
           selection_confirmed_by=VALUES(selection_confirmed_by), selection_locked_at=VALUES(selection_locked_at),
           assigned_resource_id=VALUES(assigned_resource_id), assigned_resource_type=VALUES(assigned_resource_type),
           customer_confirmation_pending=VALUES(customer_confirmation_pending),
           payment_intent_id=VALUES(payment_intent_id), signature=VALUES(signature), signed_at=VALUES(signed_at),
           past_due_bypass=VALUES(past_due_bypass), checkin_mode=VALUES(checkin_mode), visit_id=VALUES(visit_id),
           renewal_hours=VALUES(renewal_hours), renewal_ends_at=VALUES(renewal_ends_at),
           candidate_ids=VALUES(candidate_ids), updated_at=VALUES(updated_at)`,
		s.LaneID, s.SessionID, s.Status, s.StaffID, s.CustomerID, s.CustomerName, s.MembershipNumber,
		s.DesiredRentalType, s.BackupRentalType, s.WaitlistDesiredType,
		s.ProposedRentalType, s.ProposedBy, utcPtr(s.ProposedAt),
		s.SelectionConfirmed, s.SelectionConfirmedBy, utcPtr(s.SelectionLockedAt),
		s.AssignedResourceID, s.AssignedResourceType, s.CustomerConfirmationPending,
		s.PaymentIntentID, s.Signature, utcPtr(s.SignedAt), s.PastDueBypass,
		s.CheckinMode, s.VisitID, s.RenewalHours, utcPtr(s.RenewalEndsAt), candidates,
		utc(s.CreatedAt), utc(s.UpdatedAt))
	return err
}

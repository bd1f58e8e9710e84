package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// Snapshot is the full view of a lane session pushed to every observer of
// the lane and returned by lane operations.
type Snapshot struct {
	SessionID                   string                   `json:"sessionId"`
	LaneID                      string                   `json:"laneId"`
	Status                      model.LaneStatus         `json:"status"`
	CustomerID                  *string                  `json:"customerId"`
	CustomerName                string                   `json:"customerName"`
	MembershipNumber            *string                  `json:"membershipNumber"`
	AllowedRentalTypes          []model.RentalType       `json:"allowedRentalTypes"`
	Inventory                   map[model.RentalType]int `json:"inventory"`
	DesiredRentalType           *model.RentalType        `json:"desiredRentalType"`
	BackupRentalType            *model.RentalType        `json:"backupRentalType"`
	WaitlistDesiredType         *model.RentalType        `json:"waitlistDesiredType"`
	ProposedRentalType          *model.RentalType        `json:"proposedRentalType"`
	ProposedBy                  *model.Actor             `json:"proposedBy"`
	SelectionConfirmed          bool                     `json:"selectionConfirmed"`
	SelectionConfirmedBy        *model.Actor             `json:"selectionConfirmedBy"`
	SelectionLockedAt           *time.Time               `json:"selectionLockedAt"`
	AssignedResourceID          *string                  `json:"assignedResourceId"`
	AssignedResourceType        *model.ResourceType      `json:"assignedResourceType"`
	AssignedResourceNumber      *string                  `json:"assignedResourceNumber"`
	CustomerConfirmationPending bool                     `json:"customerConfirmationPending"`
	PaymentIntentID             *string                  `json:"paymentIntentId"`
	PaymentStatus               *model.PaymentStatus     `json:"paymentStatus"`
	PaymentTotal                *decimal.Decimal         `json:"paymentTotal"`
	AgreementSigned             bool                     `json:"agreementSigned"`
	PastDueBalance              decimal.Decimal          `json:"pastDueBalance"`
	PastDueBlocked              bool                     `json:"pastDueBlocked"`
	CheckinMode                 model.CheckinMode        `json:"checkinMode"`
	VisitID                     *string                  `json:"visitId"`
	CandidateIDs                []string                 `json:"candidateIds,omitempty"`
}

func (s *Service) snapshot(ctx context.Context, tx store.Tx, lane model.LaneSession) (Snapshot, error) {
	snap := Snapshot{
		SessionID:                   lane.SessionID,
		LaneID:                      lane.LaneID,
		Status:                      lane.Status,
		CustomerID:                  lane.CustomerID,
		CustomerName:                lane.CustomerName,
		MembershipNumber:            lane.MembershipNumber,
		DesiredRentalType:           lane.DesiredRentalType,
		BackupRentalType:            lane.BackupRentalType,
		WaitlistDesiredType:         lane.WaitlistDesiredType,
		ProposedRentalType:          lane.ProposedRentalType,
		ProposedBy:                  lane.ProposedBy,
		SelectionConfirmed:          lane.SelectionConfirmed,
		SelectionConfirmedBy:        lane.SelectionConfirmedBy,
		SelectionLockedAt:           lane.SelectionLockedAt,
		AssignedResourceID:          lane.AssignedResourceID,
		AssignedResourceType:        lane.AssignedResourceType,
		CustomerConfirmationPending: lane.CustomerConfirmationPending,
		PaymentIntentID:             lane.PaymentIntentID,
		AgreementSigned:             lane.Signature != nil,
		PastDueBalance:              decimal.Zero,
		CheckinMode:                 lane.CheckinMode,
		VisitID:                     lane.VisitID,
		CandidateIDs:                lane.CandidateIDs,
	}

	inv, err := availableByTier(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Inventory = inv
	for _, rt := range model.RentalTypes {
		if inv[rt] > 0 {
			snap.AllowedRentalTypes = append(snap.AllowedRentalTypes, rt)
		}
	}

	if lane.CustomerID != nil {
		c, err := tx.GetCustomer(ctx, *lane.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
		if err == nil {
			snap.PastDueBalance = c.PastDueBalance
			snap.PastDueBlocked = c.PastDue() && !lane.PastDueBypass
		}
	}
	if lane.CheckinMode == model.ModeRenewal && lane.DesiredRentalType != nil && !containsTier(snap.AllowedRentalTypes, *lane.DesiredRentalType) {
		// a renewal keeps its current resource, so its tier is always offered
		snap.AllowedRentalTypes = append(snap.AllowedRentalTypes, *lane.DesiredRentalType)
	}
	if lane.AssignedResourceID != nil && lane.AssignedResourceType != nil {
		r, err := tx.GetResource(ctx, *lane.AssignedResourceType, *lane.AssignedResourceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
		if err == nil {
			snap.AssignedResourceNumber = &r.Number
		}
	}
	if lane.PaymentIntentID != nil {
		p, err := tx.GetPaymentIntent(ctx, *lane.PaymentIntentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
		if err == nil {
			snap.PaymentStatus = &p.Status
			snap.PaymentTotal = &p.Amount
		}
	}
	return snap, nil
}

// saveAndAnnounce persists the lane and queues a session-updated event
// carrying the resulting snapshot.
func (s *Service) saveAndAnnounce(ctx context.Context, tx store.Tx, out *outbox, lane *model.LaneSession, now time.Time) (Snapshot, error) {
	lane.UpdatedAt = now
	if err := tx.SaveLaneSession(ctx, *lane); err != nil {
		return Snapshot{}, err
	}
	snap, err := s.snapshot(ctx, tx, *lane)
	if err != nil {
		return Snapshot{}, err
	}
	out.toLane(lane.LaneID, broadcast.New(broadcast.SessionUpdated, snap, now))
	return snap, nil
}

func availableByTier(ctx context.Context, tx store.Tx) (map[model.RentalType]int, error) {
	counts, err := tx.CountInventory(ctx)
	if err != nil {
		return nil, err
	}
	inv := make(map[model.RentalType]int, len(model.RentalTypes))
	for _, rt := range model.RentalTypes {
		inv[rt] = 0
	}
	for _, c := range counts {
		inv[c.Tier] += c.Available
	}
	return inv, nil
}

func containsTier(list []model.RentalType, rt model.RentalType) bool {
	for _, t := range list {
		if t == rt {
			return true
		}
	}
	return false
}

// laneForUpdate loads and locks the lane row.
func laneForUpdate(ctx context.Context, tx store.Tx, laneID string) (model.LaneSession, error) {
	lane, err := tx.GetLaneSessionForUpdate(ctx, laneID)
	if err != nil {
		return model.LaneSession{}, notFound(err, "no session for lane %s", laneID)
	}
	return lane, nil
}

// activeLane loads the lane and requires an identified customer on a
// non-terminal session.
func activeLane(ctx context.Context, tx store.Tx, laneID string) (model.LaneSession, error) {
	lane, err := laneForUpdate(ctx, tx, laneID)
	if err != nil {
		return lane, err
	}
	if lane.CustomerID == nil || lane.Status == model.LaneIdle || lane.Status.Terminal() {
		return lane, apperr.NotFound("no active session for lane %s", laneID).With("status", lane.Status)
	}
	return lane, nil
}

func requireLaneID(laneID string) error {
	if laneID == "" {
		return apperr.Validation("lane id is required")
	}
	return nil
}

// pastDueBlocked reports whether c's balance blocks selection on lane.
func pastDueBlocked(c model.Customer, lane model.LaneSession) bool {
	return c.PastDue() && !lane.PastDueBypass
}

func pastDueError(c model.Customer) error {
	return apperr.Forbidden("customer has a past-due balance").
		With("pastDueBalance", c.PastDueBalance.StringFixed(2))
}

// writeAudit appends an audit row.  prev and next are marshalled to JSON;
// nil values are stored as NULL.
func writeAudit(ctx context.Context, tx store.Tx, action, entityType, entityID, staffID string, prev, next any, now time.Time) error {
	rec := model.AuditRecord{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		StaffID:    optional(staffID),
		CreatedAt:  now,
	}
	var err error
	if prev != nil {
		if rec.Previous, err = json.Marshal(prev); err != nil {
			return err
		}
	}
	if next != nil {
		if rec.Next, err = json.Marshal(next); err != nil {
			return err
		}
	}
	return tx.InsertAudit(ctx, rec)
}

// Audit actions.
const (
	AuditAssign         = "ASSIGN"
	AuditUnassign       = "UNASSIGN"
	AuditPaymentCreated = "PAYMENT_INTENT_CREATED"
	AuditPaymentPaid    = "PAYMENT_PAID"
	AuditPastDueBypass  = "PAST_DUE_BYPASS"
	AuditCheckin        = "CHECKIN_COMPLETED"
	AuditCheckout       = "CHECKOUT_COMPLETED"
	AuditResourceStatus = "RESOURCE_STATUS"
	AuditLaneCancelled  = "LANE_CANCELLED"
	AuditLateFee        = "LATE_FEE"
)

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/scan"
	"github.com/iliyamo/clubdesk/internal/store"
)

// StartInput identifies a customer on a lane.  Exactly one of CustomerID
// and Scan is required.  VisitID requests a renewal of that open visit.
type StartInput struct {
	LaneID     string
	StaffID    string
	CustomerID string
	Scan       string
	VisitID    string
}

// StartResult is the lane after Start.  Resolution is set when a scan did
// not resolve to exactly one customer.
type StartResult struct {
	Session    Snapshot      `json:"session"`
	Resolution *scan.Outcome `json:"resolution,omitempty"`
}

// Start identifies the customer on a lane and opens or refreshes the lane's
// session.
func (s *Service) Start(ctx context.Context, in StartInput) (StartResult, error) {
	var res StartResult
	if err := requireLaneID(in.LaneID); err != nil {
		return res, err
	}
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if (in.CustomerID == "") == (strings.TrimSpace(in.Scan) == "") {
		return res, apperr.Validation("provide exactly one of customerId or scan")
	}
	err := s.run(ctx, "checkin.start", in.LaneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := tx.GetLaneSessionForUpdate(ctx, in.LaneID)
		if errors.Is(err, store.ErrNotFound) {
			lane = model.LaneSession{LaneID: in.LaneID, SessionID: uuid.NewString(), Status: model.LaneIdle, CheckinMode: model.ModeInitial, CreatedAt: now}
		} else if err != nil {
			return err
		}

		var customer model.Customer
		if in.CustomerID != "" {
			if customer, err = tx.GetCustomer(ctx, in.CustomerID); err != nil {
				return notFound(err, "customer %s not found", in.CustomerID)
			}
		} else {
			outcome, err := s.resolver.Resolve(ctx, tx, in.Scan)
			if err != nil {
				return err
			}
			if outcome.Kind != scan.Matched {
				snap, err := s.awaitCustomer(ctx, tx, out, &lane, in.StaffID, outcome, now)
				if err != nil {
					return err
				}
				res = StartResult{Session: snap, Resolution: &outcome}
				return nil
			}
			customer = *outcome.Customer
		}

		if customer.BannedAt(now) {
			return apperr.Banned("customer is banned").With("bannedUntil", customer.BannedUntil.UTC().Format(time.RFC3339))
		}

		rn, err := s.renewalContext(ctx, tx, customer, in.VisitID)
		if err != nil {
			return err
		}

		if busyWithOther(lane, customer.ID) {
			return apperr.Conflict("lane busy; clear the lane first").With("sessionId", lane.SessionID)
		}
		if err := checkBoundElsewhere(ctx, tx, customer.ID, lane.LaneID); err != nil {
			return err
		}

		sameCustomer := lane.CustomerID != nil && *lane.CustomerID == customer.ID &&
			lane.Status != model.LaneIdle && !lane.Status.Terminal()
		switch {
		case sameCustomer:
			// refresh in place, keeping negotiation progress
			if lane.Status == model.LaneAwaitingCustomer {
				lane.Status = model.LaneActive
			}
		case lane.Status == model.LaneIdle || lane.Status.Terminal():
			if err := advance(&lane, EvIdentify); err != nil {
				return err
			}
			lane.Reset(model.LaneActive, uuid.NewString(), now)
		default:
			lane.Reset(model.LaneActive, lane.SessionID, now)
		}

		lane.StaffID = optional(in.StaffID)
		lane.CustomerID = &customer.ID
		lane.CustomerName = customer.DisplayName()
		lane.MembershipNumber = customer.MembershipNumber
		lane.CandidateIDs = nil
		lane.CheckinMode = model.ModeInitial
		lane.VisitID = nil
		lane.RenewalHours = 0
		lane.RenewalEndsAt = nil
		if rn != nil {
			lane.CheckinMode = model.ModeRenewal
			lane.VisitID = &rn.visit.ID
			lane.RenewalHours = rn.hours
			lane.RenewalEndsAt = &rn.latest.EndsAt
			if lane.DesiredRentalType == nil {
				lane.DesiredRentalType = ptr(rn.latest.RentalType)
			}
		}

		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res = StartResult{Session: snap}
		return nil
	})
	return res, err
}

// busyWithOther reports whether the lane holds a commitment for a customer
// other than customerID.
func busyWithOther(lane model.LaneSession, customerID string) bool {
	if lane.Status == model.LaneIdle || lane.Status.Terminal() || lane.CustomerID == nil {
		return false
	}
	return *lane.CustomerID != customerID && lane.HasCommitments()
}

// checkBoundElsewhere refuses a customer whose unfinished session is open on
// another lane.
func checkBoundElsewhere(ctx context.Context, tx store.Tx, customerID, laneID string) error {
	other, err := tx.FindLaneByCustomer(ctx, customerID, laneID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return apperr.Conflict("customer is checking in on lane %s", other.LaneID).
		With("laneId", other.LaneID).
		With("sessionId", other.SessionID)
}

func (s *Service) awaitCustomer(ctx context.Context, tx store.Tx, out *outbox, lane *model.LaneSession, staffID string, outcome scan.Outcome, now time.Time) (Snapshot, error) {
	if lane.HasCommitments() && lane.Status != model.LaneIdle && !lane.Status.Terminal() {
		return Snapshot{}, apperr.Conflict("lane busy; clear the lane first").With("sessionId", lane.SessionID)
	}
	sessionID := lane.SessionID
	if lane.Status == model.LaneIdle || lane.Status.Terminal() {
		sessionID = uuid.NewString()
	}
	if err := advance(lane, EvAwaitCustomer); err != nil {
		return Snapshot{}, err
	}
	lane.Reset(model.LaneAwaitingCustomer, sessionID, now)
	lane.StaffID = optional(staffID)
	for _, c := range outcome.Candidates {
		lane.CandidateIDs = append(lane.CandidateIDs, c.ID)
	}
	return s.saveAndAnnounce(ctx, tx, out, lane, now)
}

type renewal struct {
	visit  model.Visit
	hours  int
	latest model.OccupancyBlock
}

// renewalContext enforces the already-checked-in guard and, when visitID is
// given, validates the renewal against the stay cap.
func (s *Service) renewalContext(ctx context.Context, tx store.Tx, customer model.Customer, visitID string) (*renewal, error) {
	visit, err := tx.GetOpenVisitByCustomer(ctx, customer.ID)
	if errors.Is(err, store.ErrNotFound) {
		if visitID != "" {
			return nil, apperr.NotFound("no open visit %s to renew", visitID)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blocks, err := tx.ListBlocks(ctx, visit.ID)
	if err != nil {
		return nil, err
	}
	latest, _ := model.LatestBlock(blocks)

	if visitID == "" {
		return nil, s.alreadyCheckedIn(ctx, tx, visit, latest)
	}
	if visitID != visit.ID {
		return nil, apperr.Validation("visit %s is not the customer's open visit", visitID)
	}
	hours := 0
	for _, b := range blocks {
		hours += b.Hours()
	}
	if hours+s.cfg.RentalBlockHours > s.cfg.MaxStayHours {
		return nil, apperr.Validation("renewal would exceed the %d hour maximum stay", s.cfg.MaxStayHours).
			With("currentHours", hours).
			With("maxStayHours", s.cfg.MaxStayHours)
	}
	return &renewal{visit: visit, hours: hours, latest: latest}, nil
}

func (s *Service) alreadyCheckedIn(ctx context.Context, tx store.Tx, visit model.Visit, latest model.OccupancyBlock) error {
	active := map[string]any{
		"visitId":             visit.ID,
		"customerId":          visit.CustomerID,
		"startedAt":           visit.StartedAt,
		"resourceId":          latest.ResourceID,
		"resourceType":        latest.ResourceType,
		"rentalType":          latest.RentalType,
		"scheduledCheckoutAt": latest.EndsAt,
	}
	if latest.ResourceID != "" {
		r, err := tx.GetResource(ctx, latest.ResourceType, latest.ResourceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil {
			active["resourceNumber"] = r.Number
		}
	}
	e := apperr.AlreadyCheckedIn("customer is already checked in").With("activeCheckin", active)
	w, err := tx.GetLiveWaitlistByVisit(ctx, visit.ID)
	switch {
	case err == nil:
		e.With("waitlist", w)
	case !errors.Is(err, store.ErrNotFound):
		return err
	default:
		e.With("waitlist", nil)
	}
	return e
}

// SelectRentalInput is a direct staff selection.
type SelectRentalInput struct {
	LaneID   string
	StaffID  string
	Desired  model.RentalType
	Backup   *model.RentalType
	Waitlist *model.RentalType
}

// SelectRental records the rental selection and moves the lane to
// AWAITING_ASSIGNMENT.  Repeating it overwrites the selection unless the
// negotiated type is already locked to a different tier.
func (s *Service) SelectRental(ctx context.Context, in SelectRentalInput) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(in.LaneID); err != nil {
		return snap, err
	}
	if !in.Desired.Valid() {
		return snap, apperr.Validation("invalid rental type %q", in.Desired)
	}
	for _, rt := range []*model.RentalType{in.Backup, in.Waitlist} {
		if rt != nil && !rt.Valid() {
			return snap, apperr.Validation("invalid rental type %q", *rt)
		}
	}
	err := s.run(ctx, "checkin.select_rental", in.LaneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, in.LaneID)
		if err != nil {
			return err
		}
		c, err := tx.GetCustomer(ctx, *lane.CustomerID)
		if err != nil {
			return err
		}
		if pastDueBlocked(c, lane) {
			return pastDueError(c)
		}
		if lane.SelectionConfirmed && lane.DesiredRentalType != nil && *lane.DesiredRentalType != in.Desired {
			return apperr.Conflict("selection already locked").With("rentalType", *lane.DesiredRentalType)
		}
		if lane.AssignedResourceID != nil {
			return apperr.Conflict("a resource is already assigned")
		}
		if err := advance(&lane, EvSelect); err != nil {
			return err
		}
		lane.DesiredRentalType = ptr(in.Desired)
		lane.BackupRentalType = in.Backup
		lane.WaitlistDesiredType = in.Waitlist
		if lane.StaffID == nil {
			lane.StaffID = optional(in.StaffID)
		}
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// PastDueBypass lets a customer with a past-due balance proceed on the
// current session.
func (s *Service) PastDueBypass(ctx context.Context, laneID, staffID string) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(laneID); err != nil {
		return snap, err
	}
	err := s.run(ctx, "checkin.past_due_bypass", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if err := advance(&lane, EvBypass); err != nil {
			return err
		}
		if !lane.PastDueBypass {
			lane.PastDueBypass = true
			if err := writeAudit(ctx, tx, AuditPastDueBypass, "lane_session", lane.SessionID, staffID, nil,
				map[string]any{"customerId": lane.CustomerID}, now); err != nil {
				return err
			}
		}
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// Cancel ends the lane's session without check-in, unwinding any
// provisional assignment and unpaid payment intent.
func (s *Service) Cancel(ctx context.Context, laneID, staffID string) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(laneID); err != nil {
		return snap, err
	}
	err := s.run(ctx, "checkin.cancel", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := laneForUpdate(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if err := advance(&lane, EvCancel); err != nil {
			return err
		}
		if err := s.releaseCommitments(ctx, tx, &lane, staffID, now); err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, AuditLaneCancelled, "lane_session", lane.SessionID, staffID, nil,
			map[string]any{"customerId": lane.CustomerID}, now); err != nil {
			return err
		}
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// Clear resets the lane to IDLE regardless of its status.  Provisional
// commitments of an unfinished session are released first.
func (s *Service) Clear(ctx context.Context, laneID, staffID string) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(laneID); err != nil {
		return snap, err
	}
	err := s.run(ctx, "checkin.clear", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := tx.GetLaneSessionForUpdate(ctx, laneID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			lane = model.LaneSession{LaneID: laneID, SessionID: uuid.NewString(), CreatedAt: now}
		case err != nil:
			return err
		case !lane.Status.Terminal():
			if err := s.releaseCommitments(ctx, tx, &lane, staffID, now); err != nil {
				return err
			}
		}
		lane.Reset(model.LaneIdle, lane.SessionID, now)
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// releaseCommitments frees a provisionally assigned resource and cancels an
// unpaid payment intent held by lane.  A renewal's resource stays bound to
// the open visit.
func (s *Service) releaseCommitments(ctx context.Context, tx store.Tx, lane *model.LaneSession, staffID string, now time.Time) error {
	if lane.AssignedResourceID != nil && lane.AssignedResourceType != nil {
		r, err := tx.GetResourceForUpdate(ctx, *lane.AssignedResourceType, *lane.AssignedResourceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil && r.Status != model.StatusOccupied && r.AssignedSessionID != nil && *r.AssignedSessionID == lane.SessionID {
			if err := s.unassign(ctx, tx, &r, lane, staffID, now); err != nil {
				return err
			}
		}
		lane.AssignedResourceID = nil
		lane.AssignedResourceType = nil
		lane.CustomerConfirmationPending = false
	}
	if lane.PaymentIntentID != nil {
		p, err := tx.GetPaymentIntentForUpdate(ctx, *lane.PaymentIntentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil && p.Status == model.PaymentDue {
			p.Status = model.PaymentCancelled
			p.UpdatedAt = now
			if err := tx.UpdatePaymentIntent(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

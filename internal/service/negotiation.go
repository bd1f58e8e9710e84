package service

import (
	"context"
	"time"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// ProposeInput is a proposal from either side of the lane.
type ProposeInput struct {
	LaneID     string
	Actor      model.Actor
	StaffID    string
	RentalType model.RentalType
}

// ProposeSelection records a proposal.  Proposals are repeatable until the
// selection is locked.
func (s *Service) ProposeSelection(ctx context.Context, in ProposeInput) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(in.LaneID); err != nil {
		return snap, err
	}
	if !in.Actor.Valid() {
		return snap, apperr.Validation("proposedBy must be CUSTOMER or EMPLOYEE")
	}
	if !in.RentalType.Valid() {
		return snap, apperr.Validation("invalid rental type %q", in.RentalType)
	}
	err := s.run(ctx, "checkin.propose_selection", in.LaneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, in.LaneID)
		if err != nil {
			return err
		}
		if lane.SelectionConfirmed {
			return apperr.Conflict("selection already locked").
				With("rentalType", lane.DesiredRentalType).
				With("confirmedBy", lane.SelectionConfirmedBy)
		}
		if err := advance(&lane, EvPropose); err != nil {
			return err
		}
		if in.Actor == model.ActorCustomer {
			c, err := tx.GetCustomer(ctx, *lane.CustomerID)
			if err != nil {
				return err
			}
			if pastDueBlocked(c, lane) {
				return pastDueError(c)
			}
		}
		lane.ProposedRentalType = ptr(in.RentalType)
		lane.ProposedBy = ptr(in.Actor)
		lane.ProposedAt = ptr(now)

		out.toLane(lane.LaneID, broadcast.New(broadcast.SelectionProposed, map[string]any{
			"sessionId":  lane.SessionID,
			"rentalType": in.RentalType,
			"proposedBy": in.Actor,
		}, now))
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// ConfirmResult reports the locked selection.  AlreadyConfirmed is set when
// the selection had been locked by an earlier call, in which case
// ConfirmedBy names that earlier actor.
type ConfirmResult struct {
	Session          Snapshot         `json:"session"`
	RentalType       model.RentalType `json:"rentalType"`
	ConfirmedBy      model.Actor      `json:"confirmedBy"`
	AlreadyConfirmed bool             `json:"alreadyConfirmed"`
}

// ConfirmSelection locks the pending proposal.  The first confirmation wins
// and later ones return the locked state without changing it.
func (s *Service) ConfirmSelection(ctx context.Context, laneID string, actor model.Actor, staffID string) (ConfirmResult, error) {
	var res ConfirmResult
	if err := requireLaneID(laneID); err != nil {
		return res, err
	}
	if !actor.Valid() {
		return res, apperr.Validation("confirmedBy must be CUSTOMER or EMPLOYEE")
	}
	err := s.run(ctx, "checkin.confirm_selection", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if lane.SelectionConfirmed {
			snap, err := s.snapshot(ctx, tx, lane)
			if err != nil {
				return err
			}
			res = ConfirmResult{Session: snap, AlreadyConfirmed: true}
			if lane.DesiredRentalType != nil {
				res.RentalType = *lane.DesiredRentalType
			}
			if lane.SelectionConfirmedBy != nil {
				res.ConfirmedBy = *lane.SelectionConfirmedBy
			}
			return nil
		}

		c, err := tx.GetCustomer(ctx, *lane.CustomerID)
		if err != nil {
			return err
		}
		if c.BannedAt(now) {
			return apperr.Banned("customer is banned").With("bannedUntil", c.BannedUntil.UTC().Format(time.RFC3339))
		}
		if pastDueBlocked(c, lane) {
			return pastDueError(c)
		}
		if lane.ProposedRentalType == nil {
			return apperr.Validation("no proposal to confirm")
		}
		if err := advance(&lane, EvConfirm); err != nil {
			return err
		}
		rt := *lane.ProposedRentalType
		lane.DesiredRentalType = ptr(rt)
		lane.SelectionConfirmed = true
		lane.SelectionConfirmedBy = ptr(actor)
		lane.SelectionLockedAt = ptr(now)
		if actor == model.ActorEmployee && lane.StaffID == nil {
			lane.StaffID = optional(staffID)
		}

		payload := map[string]any{
			"sessionId":   lane.SessionID,
			"rentalType":  rt,
			"confirmedBy": actor,
		}
		out.toLane(lane.LaneID, broadcast.New(broadcast.SelectionLocked, payload, now))
		if actor == model.ActorEmployee {
			out.toLane(lane.LaneID, broadcast.New(broadcast.SelectionForced, payload, now))
		}
		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res = ConfirmResult{Session: snap, RentalType: rt, ConfirmedBy: actor}
		return nil
	})
	return res, err
}

// AcknowledgeSelection tells the other side of the lane that actor has seen
// the locked selection.  It changes no state.
func (s *Service) AcknowledgeSelection(ctx context.Context, laneID string, actor model.Actor) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(laneID); err != nil {
		return snap, err
	}
	if !actor.Valid() {
		return snap, apperr.Validation("acknowledgedBy must be CUSTOMER or EMPLOYEE")
	}
	err := s.run(ctx, "checkin.acknowledge_selection", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if !lane.SelectionConfirmed {
			return apperr.Validation("selection is not locked")
		}
		if !ValidTransition(lane.Status, EvAcknowledge) {
			return apperr.Conflict("cannot acknowledge while lane is %s", lane.Status)
		}
		out.toLane(lane.LaneID, broadcast.New(broadcast.SelectionAcknowledged, map[string]any{
			"sessionId":      lane.SessionID,
			"rentalType":     lane.DesiredRentalType,
			"acknowledgedBy": actor,
		}, now))
		snap, err = s.snapshot(ctx, tx, lane)
		return err
	})
	return snap, err
}

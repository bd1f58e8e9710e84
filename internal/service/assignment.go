package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// errRaceLost marks the CONFLICT returned to the lanes that lost a resource
// to a concurrent assignment.
var errRaceLost = errors.New("race lost")

// AssignInput binds a resource to the lane's session.
type AssignInput struct {
	LaneID       string
	StaffID      string
	ResourceType model.ResourceType
	ResourceID   string
}

// AssignResult is the lane after a successful assignment.
type AssignResult struct {
	Session              Snapshot       `json:"session"`
	Resource             model.Resource `json:"resource"`
	ConfirmationRequired bool           `json:"customerConfirmationRequired"`
}

// Assign locks the resource row and binds it to the lane's session.  Of any
// number of lanes racing for the same resource exactly one succeeds; the
// others get CONFLICT and their lane observers an assignment-failed event.
func (s *Service) Assign(ctx context.Context, in AssignInput) (AssignResult, error) {
	var res AssignResult
	if err := requireLaneID(in.LaneID); err != nil {
		return res, err
	}
	if !in.ResourceType.Valid() || in.ResourceID == "" {
		return res, apperr.Validation("resourceType (ROOM|LOCKER) and resourceId are required")
	}
	err := s.run(ctx, "checkin.assign", in.LaneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, in.LaneID)
		if err != nil {
			return err
		}
		if lane.AssignedResourceID != nil {
			if *lane.AssignedResourceID == in.ResourceID && lane.AssignedResourceType != nil && *lane.AssignedResourceType == in.ResourceType {
				r, err := tx.GetResource(ctx, in.ResourceType, in.ResourceID)
				if err != nil {
					return err
				}
				snap, err := s.snapshot(ctx, tx, lane)
				if err != nil {
					return err
				}
				res = AssignResult{Session: snap, Resource: r, ConfirmationRequired: lane.CustomerConfirmationPending}
				return nil
			}
			return apperr.Conflict("session already has an assignment").With("assignedResourceId", *lane.AssignedResourceID)
		}
		if lane.DesiredRentalType == nil {
			return apperr.Validation("select a rental type before assigning")
		}
		if err := checkBoundElsewhere(ctx, tx, *lane.CustomerID, lane.LaneID); err != nil {
			return err
		}
		if err := advance(&lane, EvAssign); err != nil {
			return err
		}

		r, err := tx.GetResourceForUpdate(ctx, in.ResourceType, in.ResourceID)
		if err != nil {
			return notFound(err, "%s %s not found", in.ResourceType, in.ResourceID)
		}
		prev := r
		renewing, err := s.renewsOwnResource(ctx, tx, lane, r)
		if err != nil {
			return err
		}
		if !renewing {
			if r.Status != model.StatusClean {
				return apperr.Validation("%s %s is not available", r.Type, r.Number).With("status", r.Status)
			}
			if r.AssignedTo != nil {
				msg := fmt.Sprintf("race condition lost: %s %s is already assigned", r.Type, r.Number)
				return apperr.Wrap(apperr.KindConflict, errRaceLost, msg).With("resourceId", r.ID)
			}
		}
		r.AssignedTo = lane.CustomerID
		r.AssignedSessionID = &lane.SessionID
		r.UpdatedAt = now
		if err := tx.UpdateResource(ctx, r); err != nil {
			return err
		}

		lane.AssignedResourceID = &r.ID
		lane.AssignedResourceType = &r.Type
		lane.CustomerConfirmationPending = !renewing && r.Tier != *lane.DesiredRentalType
		if lane.StaffID == nil {
			lane.StaffID = optional(in.StaffID)
		}
		if err := writeAudit(ctx, tx, AuditAssign, "resource", r.ID, in.StaffID, prev, r, now); err != nil {
			return err
		}

		out.toLane(lane.LaneID, broadcast.New(broadcast.AssignmentCreated, map[string]any{
			"sessionId":      lane.SessionID,
			"resourceId":     r.ID,
			"resourceType":   r.Type,
			"resourceNumber": r.Number,
			"tier":           r.Tier,
		}, now))
		if lane.CustomerConfirmationPending {
			out.toLane(lane.LaneID, broadcast.New(broadcast.CustomerConfirmationRequired, map[string]any{
				"sessionId":      lane.SessionID,
				"desiredTier":    *lane.DesiredRentalType,
				"assignedTier":   r.Tier,
				"resourceId":     r.ID,
				"resourceNumber": r.Number,
			}, now))
		}
		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res = AssignResult{Session: snap, Resource: r, ConfirmationRequired: lane.CustomerConfirmationPending}
		return nil
	})
	if errors.Is(err, errRaceLost) {
		s.announceAssignmentFailed(ctx, in, err)
	}
	return res, err
}

// renewsOwnResource reports whether r is the resource the lane's renewal
// visit currently occupies.
func (s *Service) renewsOwnResource(ctx context.Context, tx store.Tx, lane model.LaneSession, r model.Resource) (bool, error) {
	if lane.CheckinMode != model.ModeRenewal || lane.VisitID == nil || r.AssignedTo == nil || *r.AssignedTo != *lane.CustomerID {
		return false, nil
	}
	b, err := tx.GetOpenBlockByResource(ctx, r.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.VisitID == *lane.VisitID, nil
}

// announceAssignmentFailed re-reads the lane, which may have moved on, and
// tells its observers which resource was lost.
func (s *Service) announceAssignmentFailed(ctx context.Context, in AssignInput, cause error) {
	reason := cause.Error()
	if ae, ok := apperr.As(cause); ok {
		reason = ae.Message
	}
	var ev *broadcast.Event
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		lane, err := tx.GetLaneSessionForUpdate(ctx, in.LaneID)
		if err != nil {
			return err
		}
		if lane.Status == model.LaneIdle {
			return nil
		}
		e := broadcast.New(broadcast.AssignmentFailed, map[string]any{
			"sessionId":    lane.SessionID,
			"resourceId":   in.ResourceID,
			"resourceType": in.ResourceType,
			"reason":       reason,
		}, s.clock())
		ev = &e
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("lane_id", in.LaneID).Msg("assignment failure not announced")
		}
		return
	}
	if ev != nil {
		ev.LaneID = in.LaneID
		s.bc.BroadcastToLane(ctx, *ev, in.LaneID)
	}
}

// CustomerConfirmInput is the customer's answer to a cross-tier assignment.
type CustomerConfirmInput struct {
	LaneID    string
	SessionID string
	Confirmed bool
}

// CustomerConfirm accepts or declines a cross-tier assignment.  Declining
// frees the resource; accepting keeps it and puts the originally desired
// tier on the waitlist.
func (s *Service) CustomerConfirm(ctx context.Context, in CustomerConfirmInput) (Snapshot, error) {
	var snap Snapshot
	if err := requireLaneID(in.LaneID); err != nil {
		return snap, err
	}
	if in.SessionID == "" {
		return snap, apperr.Validation("sessionId is required")
	}
	err := s.run(ctx, "checkin.customer_confirm", in.LaneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, in.LaneID)
		if err != nil {
			return err
		}
		if lane.SessionID != in.SessionID {
			return apperr.NotFound("session %s is not active on lane %s", in.SessionID, in.LaneID)
		}
		if !lane.CustomerConfirmationPending || lane.AssignedResourceID == nil {
			return apperr.Validation("no assignment awaiting customer confirmation")
		}
		if err := advance(&lane, EvCustomerConfirm); err != nil {
			return err
		}
		r, err := tx.GetResourceForUpdate(ctx, *lane.AssignedResourceType, *lane.AssignedResourceID)
		if err != nil {
			return err
		}
		payload := map[string]any{
			"sessionId":      lane.SessionID,
			"resourceId":     r.ID,
			"resourceNumber": r.Number,
			"tier":           r.Tier,
		}
		lane.CustomerConfirmationPending = false
		if in.Confirmed {
			if lane.WaitlistDesiredType == nil && lane.DesiredRentalType != nil && *lane.DesiredRentalType != r.Tier {
				lane.WaitlistDesiredType = ptr(*lane.DesiredRentalType)
			}
			out.toLane(lane.LaneID, broadcast.New(broadcast.CustomerConfirmed, payload, now))
		} else {
			if err := s.unassign(ctx, tx, &r, &lane, "", now); err != nil {
				return err
			}
			lane.AssignedResourceID = nil
			lane.AssignedResourceType = nil
			out.toLane(lane.LaneID, broadcast.New(broadcast.CustomerDeclined, payload, now))
		}
		snap, err = s.saveAndAnnounce(ctx, tx, out, &lane, now)
		return err
	})
	return snap, err
}

// unassign clears the resource's binding to lane and audits it.
func (s *Service) unassign(ctx context.Context, tx store.Tx, r *model.Resource, lane *model.LaneSession, staffID string, now time.Time) error {
	prev := *r
	r.AssignedTo = nil
	r.AssignedSessionID = nil
	r.UpdatedAt = now
	if err := tx.UpdateResource(ctx, *r); err != nil {
		return err
	}
	return writeAudit(ctx, tx, AuditUnassign, "resource", r.ID, staffID, prev, map[string]any{
		"resource":  r,
		"sessionId": lane.SessionID,
	}, now)
}

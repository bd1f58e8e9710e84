package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/queue"
	"github.com/iliyamo/clubdesk/internal/store"
)

// PaymentResult is returned by payment operations.  Session is nil when the
// owning lane has since moved on.
type PaymentResult struct {
	Session     *Snapshot           `json:"session,omitempty"`
	Intent      model.PaymentIntent `json:"paymentIntent"`
	AlreadyPaid bool                `json:"alreadyPaid"`
	Completed   bool                `json:"completed"`
}

// CreatePaymentIntent quotes the assigned rental and records a DUE intent.
// A DUE intent already on the session is re-quoted in place.
func (s *Service) CreatePaymentIntent(ctx context.Context, laneID, staffID string) (PaymentResult, error) {
	var res PaymentResult
	if err := requireLaneID(laneID); err != nil {
		return res, err
	}
	err := s.run(ctx, "checkin.create_payment_intent", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := activeLane(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if lane.AssignedResourceID == nil || lane.AssignedResourceType == nil {
			return apperr.Validation("assign a resource before creating a payment intent")
		}
		if lane.CustomerConfirmationPending {
			return apperr.Validation("waiting for the customer to confirm the assignment")
		}
		if err := advance(&lane, EvCreateIntent); err != nil {
			return err
		}
		c, err := tx.GetCustomer(ctx, *lane.CustomerID)
		if err != nil {
			return err
		}
		r, err := tx.GetResource(ctx, *lane.AssignedResourceType, *lane.AssignedResourceID)
		if err != nil {
			return err
		}
		quote, err := s.oracle.Quote(pricing.Input{
			RentalType:    r.Tier,
			Mode:          lane.CheckinMode,
			Age:           c.AgeAt(now),
			HasMembership: c.MembershipNumber != nil,
			At:            now,
		})
		if err != nil {
			return apperr.Validation("%s", err.Error())
		}

		var intent model.PaymentIntent
		if lane.PaymentIntentID != nil {
			intent, err = tx.GetPaymentIntentForUpdate(ctx, *lane.PaymentIntentID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		switch {
		case intent.ID != "" && intent.Status == model.PaymentPaid:
			return apperr.Conflict("payment intent %s is already paid", intent.ID)
		case intent.ID != "" && intent.Status == model.PaymentDue:
			intent.Quote = quote
			intent.Amount = quote.Total
			intent.UpdatedAt = now
			if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
				return err
			}
		default:
			intent = model.PaymentIntent{
				ID:        uuid.NewString(),
				LaneID:    lane.LaneID,
				SessionID: lane.SessionID,
				Amount:    quote.Total,
				Status:    model.PaymentDue,
				Quote:     quote,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.CreatePaymentIntent(ctx, intent); err != nil {
				return err
			}
		}
		if err := writeAudit(ctx, tx, AuditPaymentCreated, "payment_intent", intent.ID, staffID, nil, intent, now); err != nil {
			return err
		}
		lane.PaymentIntentID = &intent.ID
		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res = PaymentResult{Session: &snap, Intent: intent}
		return nil
	})
	return res, err
}

// MarkPaid records payment of an intent.  Repeating it is a no-op reported
// by AlreadyPaid.  If the owning session already carries a signature the
// check-in completes.
func (s *Service) MarkPaid(ctx context.Context, intentID, staffID string) (PaymentResult, error) {
	var res PaymentResult
	if intentID == "" {
		return res, apperr.Validation("payment intent id is required")
	}
	err := s.run(ctx, "checkin.mark_paid", "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		intent, err := tx.GetPaymentIntentForUpdate(ctx, intentID)
		if err != nil {
			return notFound(err, "payment intent %s not found", intentID)
		}
		lane, err := tx.GetLaneSessionBySessionIDForUpdate(ctx, intent.SessionID)
		owned := err == nil && lane.PaymentIntentID != nil && *lane.PaymentIntentID == intent.ID &&
			lane.Status != model.LaneIdle && !lane.Status.Terminal()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if intent.Status == model.PaymentPaid {
			res = PaymentResult{Intent: intent, AlreadyPaid: true}
			if err == nil {
				snap, err := s.snapshot(ctx, tx, lane)
				if err != nil {
					return err
				}
				res.Session = &snap
				res.Completed = lane.Status == model.LaneCompleted
			}
			return nil
		}
		if intent.Status != model.PaymentDue {
			return apperr.Conflict("payment intent %s is %s", intent.ID, intent.Status)
		}

		intent.Status = model.PaymentPaid
		intent.PaidBy = optional(staffID)
		intent.PaidAt = ptr(now)
		intent.UpdatedAt = now
		if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, AuditPaymentPaid, "payment_intent", intent.ID, staffID,
			map[string]any{"status": model.PaymentDue}, map[string]any{"status": model.PaymentPaid, "amount": intent.Amount}, now); err != nil {
			return err
		}
		res = PaymentResult{Intent: intent}
		if !owned {
			return nil
		}

		if lane.Signature != nil {
			if err := s.complete(ctx, tx, out, &lane, staffID, now); err != nil {
				return err
			}
			res.Completed = true
		} else if err := advance(&lane, EvMarkPaid); err != nil {
			return err
		}
		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res.Session = &snap
		return nil
	})
	if err == nil && res.Session != nil {
		s.log.Info().Str("payment_intent_id", intentID).Str("lane_id", res.Session.LaneID).
			Bool("already_paid", res.AlreadyPaid).Msg("payment marked paid")
		if res.Completed && !res.AlreadyPaid {
			s.logCompleted(*res.Session)
		}
	}
	return res, err
}

// SignResult is the lane after a signature was stored.
type SignResult struct {
	Session   Snapshot `json:"session"`
	Completed bool     `json:"completed"`
}

// SignAgreement stores the customer's signature.  An existing payment
// intent must be PAID first; when it is, the check-in completes.
func (s *Service) SignAgreement(ctx context.Context, laneID, signature string) (SignResult, error) {
	var res SignResult
	completedNow := false
	if err := requireLaneID(laneID); err != nil {
		return res, err
	}
	if strings.TrimSpace(signature) == "" {
		return res, apperr.Validation("signature is required")
	}
	err := s.run(ctx, "checkin.sign_agreement", laneID, func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		lane, err := laneForUpdate(ctx, tx, laneID)
		if err != nil {
			return err
		}
		if lane.Status == model.LaneCompleted && lane.Signature != nil {
			snap, err := s.snapshot(ctx, tx, lane)
			if err != nil {
				return err
			}
			res = SignResult{Session: snap, Completed: true}
			return nil
		}
		if lane.CustomerID == nil {
			return apperr.NotFound("no active session for lane %s", laneID)
		}
		if err := advance(&lane, EvSign); err != nil {
			return err
		}

		paid := false
		if lane.PaymentIntentID != nil {
			intent, err := tx.GetPaymentIntent(ctx, *lane.PaymentIntentID)
			if err != nil {
				return err
			}
			if intent.Status != model.PaymentPaid {
				return apperr.Validation("payment must be completed before signing").With("paymentStatus", intent.Status)
			}
			paid = true
		}
		lane.Signature = ptr(signature)
		lane.SignedAt = ptr(now)
		if paid {
			if err := s.complete(ctx, tx, out, &lane, "", now); err != nil {
				return err
			}
			completedNow = true
		}
		snap, err := s.saveAndAnnounce(ctx, tx, out, &lane, now)
		if err != nil {
			return err
		}
		res = SignResult{Session: snap, Completed: lane.Status == model.LaneCompleted}
		return nil
	})
	if err == nil && completedNow {
		s.logCompleted(res.Session)
	}
	return res, err
}

// complete turns a paid and signed session into occupancy: a new visit (or
// a new block on the renewed visit), the resource OCCUPIED and the session
// COMPLETED.  It runs at most once per session.
func (s *Service) complete(ctx context.Context, tx store.Tx, out *outbox, lane *model.LaneSession, staffID string, now time.Time) error {
	if lane.Status == model.LaneCompleted {
		return nil
	}
	if lane.AssignedResourceID == nil || lane.AssignedResourceType == nil {
		return apperr.Validation("session has no assigned resource")
	}
	if err := advance(lane, EvComplete); err != nil {
		return err
	}
	c, err := tx.GetCustomer(ctx, *lane.CustomerID)
	if err != nil {
		return err
	}
	r, err := tx.GetResourceForUpdate(ctx, *lane.AssignedResourceType, *lane.AssignedResourceID)
	if err != nil {
		return err
	}
	if r.AssignedTo == nil || *r.AssignedTo != c.ID {
		return apperr.Conflict("assignment of %s %s was lost", r.Type, r.Number)
	}

	kind := queue.VisitStarted
	start := now
	var visit model.Visit
	if lane.CheckinMode == model.ModeRenewal && lane.VisitID != nil {
		kind = queue.VisitRenewed
		visit, err = tx.GetVisitForUpdate(ctx, *lane.VisitID)
		if err != nil {
			return err
		}
		if !visit.Open() {
			return apperr.Conflict("visit %s was checked out during renewal", visit.ID)
		}
		if lane.RenewalEndsAt != nil && lane.RenewalEndsAt.After(now) {
			start = *lane.RenewalEndsAt
		}
	} else {
		open, err := tx.GetOpenVisitByCustomer(ctx, c.ID)
		if err == nil {
			return apperr.AlreadyCheckedIn("customer already has an open visit").With("visitId", open.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		visit = model.Visit{ID: uuid.NewString(), CustomerID: c.ID, StartedAt: now}
		if err := tx.CreateVisit(ctx, visit); err != nil {
			return err
		}
	}
	block := model.OccupancyBlock{
		ID:           uuid.NewString(),
		VisitID:      visit.ID,
		ResourceID:   r.ID,
		ResourceType: r.Type,
		RentalType:   r.Tier,
		SessionID:    lane.SessionID,
		StartsAt:     start,
		EndsAt:       start.Add(time.Duration(s.cfg.RentalBlockHours) * time.Hour),
	}
	if err := tx.CreateBlock(ctx, block); err != nil {
		return err
	}

	prev := r
	r.Status = model.StatusOccupied
	r.AssignedSessionID = &lane.SessionID
	r.UpdatedAt = now
	if err := tx.UpdateResource(ctx, r); err != nil {
		return err
	}

	if lane.WaitlistDesiredType != nil && *lane.WaitlistDesiredType != r.Tier {
		w := model.WaitlistEntry{
			ID:          uuid.NewString(),
			VisitID:     visit.ID,
			CustomerID:  c.ID,
			DesiredTier: *lane.WaitlistDesiredType,
			BackupTier:  r.Tier,
			Status:      model.WaitlistActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateWaitlistEntry(ctx, w); err != nil {
			return err
		}
		out.toAll(broadcast.New(broadcast.WaitlistUpdated, map[string]any{
			"action": "created",
			"entry":  w,
		}, now))
	}

	lane.VisitID = &visit.ID
	if err := writeAudit(ctx, tx, AuditCheckin, "visit", visit.ID, staffID, prev, map[string]any{
		"sessionId": lane.SessionID,
		"block":     block,
		"mode":      lane.CheckinMode,
	}, now); err != nil {
		return err
	}

	out.toAll(broadcast.New(broadcast.RoomStatusChanged, map[string]any{
		"resourceId":     r.ID,
		"resourceType":   r.Type,
		"resourceNumber": r.Number,
		"status":         r.Status,
	}, now))
	out.publish(queue.OccupancyEvent{
		Kind:           kind,
		VisitID:        visit.ID,
		BlockID:        block.ID,
		CustomerID:     c.ID,
		CustomerName:   c.DisplayName(),
		LaneID:         lane.LaneID,
		ResourceID:     r.ID,
		ResourceType:   string(r.Type),
		ResourceNumber: r.Number,
		RentalType:     string(block.RentalType),
		StartsAt:       block.StartsAt.Format(time.RFC3339),
		EndsAt:         block.EndsAt.Format(time.RFC3339),
		OccurredAt:     now.Format(time.RFC3339),
	})
	return nil
}

// logCompleted records a completion once its transaction has committed.
func (s *Service) logCompleted(snap Snapshot) {
	ev := s.log.Info().Str("lane_id", snap.LaneID).Str("session_id", snap.SessionID).
		Str("mode", string(snap.CheckinMode))
	if snap.VisitID != nil {
		ev = ev.Str("visit_id", *snap.VisitID)
	}
	if snap.AssignedResourceID != nil {
		ev = ev.Str("resource_id", *snap.AssignedResourceID)
	}
	ev.Msg("check-in completed")
}

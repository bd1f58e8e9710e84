package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/queue"
	"github.com/iliyamo/clubdesk/internal/store"
)

// OccupancySummary describes an open occupancy for checkout.  OccupancyID
// is the id of the visit's latest open block.
type OccupancySummary struct {
	OccupancyID         string             `json:"occupancyId"`
	VisitID             string             `json:"visitId"`
	CustomerID          string             `json:"customerId"`
	CustomerName        string             `json:"customerName"`
	ResourceID          string             `json:"resourceId"`
	ResourceType        model.ResourceType `json:"resourceType"`
	ResourceNumber      string             `json:"resourceNumber"`
	ScheduledCheckoutAt time.Time          `json:"scheduledCheckoutAt"`
	LateMinutes         int                `json:"lateMinutes"`
	LateFee             decimal.Decimal    `json:"lateFee"`
	BanApplies          bool               `json:"banApplies"`
}

// CheckoutResult is the outcome of closing an occupancy.
type CheckoutResult struct {
	OccupancyID       string               `json:"occupancyId"`
	VisitID           string               `json:"visitId"`
	CustomerID        string               `json:"customerId"`
	ResourceID        string               `json:"resourceId,omitempty"`
	ResourceType      model.ResourceType   `json:"resourceType,omitempty"`
	ResourceNumber    string               `json:"resourceNumber,omitempty"`
	ResourceStatus    model.ResourceStatus `json:"resourceStatus,omitempty"`
	LateMinutes       int                  `json:"lateMinutes"`
	LateFee           decimal.Decimal      `json:"lateFee"`
	BanApplied        bool                 `json:"banApplied"`
	FeePaid           bool                 `json:"feePaid"`
	WaitlistCancelled int                  `json:"waitlistCancelled"`
	AlreadyCheckedOut bool                 `json:"alreadyCheckedOut"`
}

// ResolveKey finds the open occupancy of the room or locker whose number is
// key.
func (s *Service) ResolveKey(ctx context.Context, key string) (OccupancySummary, error) {
	var sum OccupancySummary
	key = strings.TrimSpace(key)
	if key == "" {
		return sum, apperr.Validation("key is required")
	}
	err := s.run(ctx, "checkout.resolve_key", "", func(ctx context.Context, tx store.Tx, _ *outbox) error {
		var err error
		sum, err = s.summaryByKey(ctx, tx, key)
		return err
	})
	return sum, err
}

// ManualResolve finds an open occupancy by key or by customer id.
func (s *Service) ManualResolve(ctx context.Context, key, customerID string) (OccupancySummary, error) {
	var sum OccupancySummary
	key, customerID = strings.TrimSpace(key), strings.TrimSpace(customerID)
	if key == "" && customerID == "" {
		return sum, apperr.Validation("key or customerId is required")
	}
	err := s.run(ctx, "checkout.manual_resolve", "", func(ctx context.Context, tx store.Tx, _ *outbox) error {
		var err error
		if key != "" {
			sum, err = s.summaryByKey(ctx, tx, key)
			return err
		}
		visit, err := tx.GetOpenVisitByCustomer(ctx, customerID)
		if err != nil {
			return notFound(err, "customer %s has no open visit", customerID)
		}
		blocks, err := tx.ListBlocks(ctx, visit.ID)
		if err != nil {
			return err
		}
		latest, ok := model.LatestBlock(openBlocks(blocks))
		if !ok {
			return apperr.NotFound("customer %s has no open occupancy", customerID)
		}
		sum, err = s.summary(ctx, tx, latest)
		return err
	})
	return sum, err
}

func (s *Service) summaryByKey(ctx context.Context, tx store.Tx, key string) (OccupancySummary, error) {
	r, err := tx.FindResourceByNumber(ctx, key)
	if err != nil {
		return OccupancySummary{}, notFound(err, "no room or locker %q", key)
	}
	b, err := tx.GetOpenBlockByResource(ctx, r.ID)
	if err != nil {
		return OccupancySummary{}, notFound(err, "%s %s is not occupied", r.Type, r.Number)
	}
	return s.summary(ctx, tx, b)
}

func (s *Service) summary(ctx context.Context, tx store.Tx, b model.OccupancyBlock) (OccupancySummary, error) {
	visit, err := tx.GetVisitForUpdate(ctx, b.VisitID)
	if err != nil {
		return OccupancySummary{}, err
	}
	c, err := tx.GetCustomer(ctx, visit.CustomerID)
	if err != nil {
		return OccupancySummary{}, err
	}
	r, err := tx.GetResource(ctx, b.ResourceType, b.ResourceID)
	if err != nil {
		return OccupancySummary{}, err
	}
	blocks, err := tx.ListBlocks(ctx, visit.ID)
	if err != nil {
		return OccupancySummary{}, err
	}
	latest, _ := model.LatestBlock(blocks)
	fee := pricing.AssessLateFee(latest.EndsAt, s.clock())
	return OccupancySummary{
		OccupancyID:         b.ID,
		VisitID:             visit.ID,
		CustomerID:          c.ID,
		CustomerName:        c.DisplayName(),
		ResourceID:          r.ID,
		ResourceType:        r.Type,
		ResourceNumber:      r.Number,
		ScheduledCheckoutAt: latest.EndsAt,
		LateMinutes:         fee.Minutes,
		LateFee:             fee.Fee,
		BanApplies:          fee.Ban,
	}, nil
}

func openBlocks(blocks []model.OccupancyBlock) []model.OccupancyBlock {
	var open []model.OccupancyBlock
	for _, b := range blocks {
		if b.ClosedAt == nil {
			open = append(open, b)
		}
	}
	return open
}

// CheckoutRequestResult wraps a kiosk checkout request.  Created is false
// when an open request for the occupancy already existed.
type CheckoutRequestResult struct {
	Request  model.CheckoutRequest `json:"request"`
	Created  bool                  `json:"created"`
	Checkout *CheckoutResult       `json:"checkout,omitempty"`
}

// RequestCheckout opens a kiosk checkout request for an occupancy.  There is
// at most one open request per occupancy.
func (s *Service) RequestCheckout(ctx context.Context, occupancyID string, items map[string]bool) (CheckoutRequestResult, error) {
	var res CheckoutRequestResult
	if occupancyID == "" {
		return res, apperr.Validation("occupancyId is required")
	}
	err := s.run(ctx, "checkout.request", "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		b, err := tx.GetBlock(ctx, occupancyID)
		if err != nil {
			return notFound(err, "occupancy %s not found", occupancyID)
		}
		if b.ClosedAt != nil {
			return apperr.NotFound("occupancy %s is already checked out", occupancyID)
		}
		existing, err := tx.GetOpenCheckoutRequestByOccupancy(ctx, occupancyID)
		if err == nil {
			res = CheckoutRequestResult{Request: existing}
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		sum, err := s.summary(ctx, tx, b)
		if err != nil {
			return err
		}
		if items == nil {
			items = map[string]bool{}
		}
		req := model.CheckoutRequest{
			ID:           uuid.NewString(),
			OccupancyID:  b.ID,
			VisitID:      sum.VisitID,
			CustomerID:   sum.CustomerID,
			ResourceID:   sum.ResourceID,
			ResourceType: sum.ResourceType,
			Status:       model.CheckoutSubmitted,
			Items:        items,
			LateMinutes:  sum.LateMinutes,
			LateFee:      sum.LateFee,
			BanApplies:   sum.BanApplies,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateCheckoutRequest(ctx, req); err != nil {
			return err
		}
		out.toAll(broadcast.New(broadcast.CheckoutRequested, map[string]any{
			"request": req,
			"summary": sum,
		}, now))
		res = CheckoutRequestResult{Request: req, Created: true}
		return nil
	})
	return res, err
}

// ClaimCheckout gives staffID a short lease on the request.  A claim held by
// someone else is honoured until it expires.
func (s *Service) ClaimCheckout(ctx context.Context, requestID, staffID string) (model.CheckoutRequest, error) {
	return s.updateCheckout(ctx, "checkout.claim", requestID, staffID, false, func(r *model.CheckoutRequest, now time.Time) (broadcast.EventType, error) {
		if r.ClaimedByOther(staffID, now) {
			return "", apperr.Conflict("checkout request is claimed by another employee").
				With("claimedBy", *r.ClaimedBy).
				With("claimExpiresAt", r.ClaimExpiresAt)
		}
		r.Status = model.CheckoutClaimed
		r.ClaimedBy = ptr(staffID)
		r.ClaimExpiresAt = ptr(now.Add(s.cfg.CheckoutClaimTTL))
		return broadcast.CheckoutClaimed, nil
	})
}

// ConfirmItems records that the returned items were checked.  items, when
// non-nil, replaces the submitted list.
func (s *Service) ConfirmItems(ctx context.Context, requestID, staffID string, items map[string]bool) (model.CheckoutRequest, error) {
	return s.updateCheckout(ctx, "checkout.confirm_items", requestID, staffID, true, func(r *model.CheckoutRequest, _ time.Time) (broadcast.EventType, error) {
		if items != nil {
			r.Items = items
		}
		r.ItemsConfirmed = true
		return broadcast.CheckoutUpdated, nil
	})
}

// MarkCheckoutFeePaid records that the late fee was paid at the desk.
func (s *Service) MarkCheckoutFeePaid(ctx context.Context, requestID, staffID string) (model.CheckoutRequest, error) {
	return s.updateCheckout(ctx, "checkout.mark_fee_paid", requestID, staffID, true, func(r *model.CheckoutRequest, _ time.Time) (broadcast.EventType, error) {
		r.FeePaid = true
		return broadcast.CheckoutUpdated, nil
	})
}

type checkoutMutation func(r *model.CheckoutRequest, now time.Time) (broadcast.EventType, error)

func (s *Service) updateCheckout(ctx context.Context, op, requestID, staffID string, claimantOnly bool, mutate checkoutMutation) (model.CheckoutRequest, error) {
	var req model.CheckoutRequest
	if requestID == "" || staffID == "" {
		return req, apperr.Validation("request id and staff id are required")
	}
	err := s.run(ctx, op, "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		r, err := s.openCheckoutRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if claimantOnly {
			if err := requireClaimant(r, staffID); err != nil {
				return err
			}
		}
		evType, err := mutate(&r, now)
		if err != nil {
			return err
		}
		r.UpdatedAt = now
		if err := tx.UpdateCheckoutRequest(ctx, r); err != nil {
			return err
		}
		out.toAll(broadcast.New(evType, r, now))
		req = r
		return nil
	})
	return req, err
}

func (s *Service) openCheckoutRequest(ctx context.Context, tx store.Tx, id string) (model.CheckoutRequest, error) {
	r, err := tx.GetCheckoutRequestForUpdate(ctx, id)
	if err != nil {
		return r, notFound(err, "checkout request %s not found", id)
	}
	if !r.Open() {
		return r, apperr.Conflict("checkout request is %s", r.Status).With("status", r.Status)
	}
	return r, nil
}

func requireClaimant(r model.CheckoutRequest, staffID string) error {
	if r.Status != model.CheckoutClaimed || r.ClaimedBy == nil || *r.ClaimedBy != staffID {
		return apperr.Conflict("claim the checkout request first")
	}
	return nil
}

// CompleteCheckout closes the occupancy behind a claimed request once the
// items are confirmed and any late fee is paid.
func (s *Service) CompleteCheckout(ctx context.Context, requestID, staffID string) (CheckoutRequestResult, error) {
	var res CheckoutRequestResult
	if requestID == "" || staffID == "" {
		return res, apperr.Validation("request id and staff id are required")
	}
	err := s.run(ctx, "checkout.complete", "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		r, err := s.openCheckoutRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := requireClaimant(r, staffID); err != nil {
			return err
		}
		if !r.ItemsConfirmed {
			return apperr.Validation("confirm the returned items first")
		}
		if r.LateFee.IsPositive() && !r.FeePaid {
			return apperr.Validation("late fee of %s is unpaid", r.LateFee.StringFixed(2))
		}
		co, err := s.closeOccupancy(ctx, tx, out, r.OccupancyID, staffID, r.FeePaid, now)
		if err != nil {
			return err
		}
		r.Status = model.CheckoutCompleted
		r.CompletedAt = ptr(now)
		r.UpdatedAt = now
		if err := tx.UpdateCheckoutRequest(ctx, r); err != nil {
			return err
		}
		out.toAll(broadcast.New(broadcast.CheckoutCompleted, map[string]any{
			"request":  r,
			"checkout": co,
		}, now))
		res = CheckoutRequestResult{Request: r, Checkout: &co}
		return nil
	})
	return res, err
}

// ManualComplete closes an occupancy without the kiosk flow.  Repeating it
// on a closed visit reports AlreadyCheckedOut and changes nothing.
func (s *Service) ManualComplete(ctx context.Context, occupancyID, staffID string, feePaid bool) (CheckoutResult, error) {
	var res CheckoutResult
	if occupancyID == "" {
		return res, apperr.Validation("occupancyId is required")
	}
	err := s.run(ctx, "checkout.manual_complete", "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		co, err := s.closeOccupancy(ctx, tx, out, occupancyID, staffID, feePaid, now)
		if err != nil {
			return err
		}
		res = co
		if co.AlreadyCheckedOut {
			return nil
		}
		open, err := tx.GetOpenCheckoutRequestByOccupancy(ctx, occupancyID)
		switch {
		case err == nil:
			open.Status = model.CheckoutCancelled
			open.UpdatedAt = now
			if err := tx.UpdateCheckoutRequest(ctx, open); err != nil {
				return err
			}
			out.toAll(broadcast.New(broadcast.CheckoutUpdated, open, now))
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		out.toAll(broadcast.New(broadcast.CheckoutCompleted, map[string]any{"checkout": co}, now))
		return nil
	})
	return res, err
}

// closeOccupancy ends the visit behind occupancyID.  The visit row lock makes
// concurrent and repeated closes see the first close's result.
func (s *Service) closeOccupancy(ctx context.Context, tx store.Tx, out *outbox, occupancyID, staffID string, feePaid bool, now time.Time) (CheckoutResult, error) {
	b, err := tx.GetBlock(ctx, occupancyID)
	if err != nil {
		return CheckoutResult{}, notFound(err, "occupancy %s not found", occupancyID)
	}
	visit, err := tx.GetVisitForUpdate(ctx, b.VisitID)
	if err != nil {
		return CheckoutResult{}, err
	}
	res := CheckoutResult{OccupancyID: b.ID, VisitID: visit.ID, CustomerID: visit.CustomerID, LateFee: decimal.Zero}
	if !visit.Open() {
		res.AlreadyCheckedOut = true
		return res, nil
	}

	blocks, err := tx.ListBlocks(ctx, visit.ID)
	if err != nil {
		return res, err
	}
	latest, _ := model.LatestBlock(blocks)
	fee := pricing.AssessLateFee(latest.EndsAt, now)
	res.LateMinutes = fee.Minutes
	res.LateFee = fee.Fee
	res.BanApplied = fee.Ban
	res.FeePaid = feePaid && fee.Fee.IsPositive()

	c, err := tx.GetCustomerForUpdate(ctx, visit.CustomerID)
	if err != nil {
		return res, err
	}

	if res.WaitlistCancelled, err = tx.CancelWaitlistByVisit(ctx, visit.ID, now); err != nil {
		return res, err
	}
	if res.WaitlistCancelled > 0 {
		out.toAll(broadcast.New(broadcast.WaitlistUpdated, map[string]any{
			"action":    "cancelled",
			"visitId":   visit.ID,
			"cancelled": res.WaitlistCancelled,
		}, now))
	}

	released := map[string]bool{}
	for _, blk := range blocks {
		if blk.ClosedAt == nil {
			blk.ClosedAt = ptr(now)
			if err := tx.UpdateBlock(ctx, blk); err != nil {
				return res, err
			}
		}
		key := string(blk.ResourceType) + ":" + blk.ResourceID
		if released[key] {
			continue
		}
		released[key] = true
		r, err := tx.GetResourceForUpdate(ctx, blk.ResourceType, blk.ResourceID)
		if err != nil {
			return res, err
		}
		if r.AssignedTo == nil || *r.AssignedTo != c.ID {
			continue
		}
		if r.AssignedSessionID != nil {
			if err := detachLane(ctx, tx, *r.AssignedSessionID, r.ID, now); err != nil {
				return res, err
			}
		}
		prev := r
		r.Status = r.PostUseStatus()
		r.AssignedTo = nil
		r.AssignedSessionID = nil
		r.UpdatedAt = now
		if err := tx.UpdateResource(ctx, r); err != nil {
			return res, err
		}
		if err := writeAudit(ctx, tx, AuditResourceStatus, "resource", r.ID, staffID, prev, r, now); err != nil {
			return res, err
		}
		out.toAll(broadcast.New(broadcast.RoomStatusChanged, map[string]any{
			"resourceId":     r.ID,
			"resourceType":   r.Type,
			"resourceNumber": r.Number,
			"status":         r.Status,
		}, now))
		if blk.ID == latest.ID {
			res.ResourceID, res.ResourceType, res.ResourceNumber, res.ResourceStatus = r.ID, r.Type, r.Number, r.Status
		}
	}

	visit.EndedAt = ptr(now)
	if err := tx.UpdateVisit(ctx, visit); err != nil {
		return res, err
	}

	if fee.Fee.IsPositive() || fee.Ban {
		prev := c
		if fee.Fee.IsPositive() {
			note := fmt.Sprintf("%s late checkout %d min, fee $%s", now.Format("2006-01-02"), fee.Minutes, fee.Fee.StringFixed(2))
			if c.Notes != "" {
				c.Notes += "\n"
			}
			c.Notes += note
			if !feePaid {
				c.PastDueBalance = c.PastDueBalance.Add(fee.Fee)
			}
		}
		if fee.Ban {
			c.BannedUntil = fee.BanUntil
		}
		c.UpdatedAt = now
		if err := tx.UpdateCustomer(ctx, c); err != nil {
			return res, err
		}
		if err := writeAudit(ctx, tx, AuditLateFee, "customer", c.ID, staffID, prev, c, now); err != nil {
			return res, err
		}
	}

	if err := writeAudit(ctx, tx, AuditCheckout, "visit", visit.ID, staffID, nil, res, now); err != nil {
		return res, err
	}
	out.publish(queue.OccupancyEvent{
		Kind:           queue.VisitEnded,
		VisitID:        visit.ID,
		BlockID:        latest.ID,
		CustomerID:     c.ID,
		CustomerName:   c.DisplayName(),
		ResourceID:     res.ResourceID,
		ResourceType:   string(res.ResourceType),
		ResourceNumber: res.ResourceNumber,
		RentalType:     string(latest.RentalType),
		StartsAt:       visit.StartedAt.Format(time.RFC3339),
		EndsAt:         now.Format(time.RFC3339),
		LateMinutes:    fee.Minutes,
		LateFee:        fee.Fee.StringFixed(2),
		BanApplied:     fee.Ban,
		OccurredAt:     now.Format(time.RFC3339),
	})
	return res, nil
}

// detachLane drops the resource reference from the session that assigned
// it, so a finished lane never points at a released resource.
func detachLane(ctx context.Context, tx store.Tx, sessionID, resourceID string, now time.Time) error {
	lane, err := tx.GetLaneSessionBySessionIDForUpdate(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lane.AssignedResourceID == nil || *lane.AssignedResourceID != resourceID {
		return nil
	}
	lane.AssignedResourceID = nil
	lane.AssignedResourceType = nil
	lane.UpdatedAt = now
	return tx.SaveLaneSession(ctx, lane)
}

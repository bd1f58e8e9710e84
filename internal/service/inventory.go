package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/store"
)

// WaitlistInfo estimates when a tier frees up for a customer joining its
// waitlist now.
type WaitlistInfo struct {
	DesiredTier      model.RentalType `json:"desiredTier"`
	Available        bool             `json:"available"`
	AvailableCount   int              `json:"availableCount"`
	Position         int              `json:"position"`
	EstimatedReadyAt *time.Time       `json:"estimatedReadyAt"`
	UpgradeFee       *decimal.Decimal `json:"upgradeFee"`
}

// WaitlistInfo computes the queue position and ETA for desired.  current,
// when set, prices the upgrade from the customer's present tier.
func (s *Service) WaitlistInfo(ctx context.Context, laneID string, desired model.RentalType, current *model.RentalType) (WaitlistInfo, error) {
	var info WaitlistInfo
	if !desired.Valid() {
		return info, apperr.Validation("invalid desiredTier %q", desired)
	}
	if current != nil && !current.Valid() {
		return info, apperr.Validation("invalid currentTier %q", *current)
	}
	err := s.run(ctx, "checkin.waitlist_info", laneID, func(ctx context.Context, tx store.Tx, _ *outbox) error {
		now := s.clock()
		inv, err := availableByTier(ctx, tx)
		if err != nil {
			return err
		}
		queued, err := tx.CountLiveWaitlist(ctx, desired)
		if err != nil {
			return err
		}
		ends, err := tx.ScheduledEndsForTier(ctx, desired)
		if err != nil {
			return err
		}
		info = WaitlistInfo{
			DesiredTier:    desired,
			AvailableCount: inv[desired],
			Available:      inv[desired] > 0,
			Position:       queued + 1,
		}
		if info.Position <= len(ends) {
			eta := ends[info.Position-1].Add(s.cfg.RoomTurnover)
			if eta.Before(now) {
				eta = now.Add(s.cfg.RoomTurnover)
			}
			info.EstimatedReadyAt = &eta
		}
		if current != nil {
			fee := pricing.UpgradeFee(desired, *current)
			info.UpgradeFee = &fee
		}
		return nil
	})
	return info, err
}

// Inventory is the ledger summary shown on kiosks and the office dashboard.
type Inventory struct {
	Counts    []store.InventoryCount   `json:"counts"`
	Available map[model.RentalType]int `json:"available"`
}

// Inventory counts resources per tier and status.
func (s *Service) Inventory(ctx context.Context) (Inventory, error) {
	var inv Inventory
	err := s.run(ctx, "inventory.list", "", func(ctx context.Context, tx store.Tx, _ *outbox) error {
		counts, err := tx.CountInventory(ctx)
		if err != nil {
			return err
		}
		inv.Counts = counts
		inv.Available = make(map[model.RentalType]int, len(model.RentalTypes))
		for _, rt := range model.RentalTypes {
			inv.Available[rt] = 0
		}
		for _, c := range counts {
			inv.Available[c.Tier] += c.Available
		}
		return nil
	})
	return inv, err
}

// housekeeping lists the status changes staff may make by hand.
var housekeeping = map[model.ResourceStatus][]model.ResourceStatus{
	model.StatusDirty:    {model.StatusCleaning},
	model.StatusCleaning: {model.StatusClean},
	model.StatusClean:    {model.StatusDirty},
}

func allowedHousekeeping(from, to model.ResourceStatus) bool {
	for _, s := range housekeeping[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetResourceStatus applies a housekeeping transition to an unassigned
// resource.
func (s *Service) SetResourceStatus(ctx context.Context, rt model.ResourceType, id string, status model.ResourceStatus, staffID string) (model.Resource, error) {
	var res model.Resource
	if !rt.Valid() || id == "" {
		return res, apperr.Validation("resource type (ROOM|LOCKER) and id are required")
	}
	err := s.run(ctx, "inventory.set_status", "", func(ctx context.Context, tx store.Tx, out *outbox) error {
		now := s.clock()
		r, err := tx.GetResourceForUpdate(ctx, rt, id)
		if err != nil {
			return notFound(err, "%s %s not found", rt, id)
		}
		if r.AssignedTo != nil {
			return apperr.Conflict("%s %s is assigned", r.Type, r.Number)
		}
		if !allowedHousekeeping(r.Status, status) {
			return apperr.Validation("cannot change %s %s from %s to %s", r.Type, r.Number, r.Status, status)
		}
		prev := r
		r.Status = status
		r.UpdatedAt = now
		if err := tx.UpdateResource(ctx, r); err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, AuditResourceStatus, "resource", r.ID, staffID, prev, r, now); err != nil {
			return err
		}
		out.toAll(broadcast.New(broadcast.RoomStatusChanged, map[string]any{
			"resourceId":     r.ID,
			"resourceType":   r.Type,
			"resourceNumber": r.Number,
			"status":         r.Status,
			"previousStatus": prev.Status,
		}, now))
		res = r
		return nil
	})
	return res, err
}

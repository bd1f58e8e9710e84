package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// sqlTx adapts the per-table repos to store.Tx for one *sql.Tx.
type sqlTx struct {
	s  *Store
	tx *sql.Tx
}

var _ store.Tx = (*sqlTx)(nil)

func (t *sqlTx) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	c, err := t.s.customers.GetTx(ctx, t.tx, id)
	return c, mapErr(err)
}

func (t *sqlTx) GetCustomerForUpdate(ctx context.Context, id string) (model.Customer, error) {
	c, err := t.s.customers.GetForUpdateTx(ctx, t.tx, id)
	return c, mapErr(err)
}

func (t *sqlTx) FindCustomersByScan(ctx context.Context, scanHash, scanValue string) ([]model.Customer, error) {
	out, err := t.s.customers.FindByScanTx(ctx, t.tx, scanHash, scanValue)
	return out, mapErr(err)
}

func (t *sqlTx) UpdateCustomer(ctx context.Context, c model.Customer) error {
	return mapErr(t.s.customers.UpdateTx(ctx, t.tx, c))
}

func (t *sqlTx) GetLaneSessionForUpdate(ctx context.Context, laneID string) (model.LaneSession, error) {
	s, err := t.s.lanes.GetByLaneForUpdateTx(ctx, t.tx, laneID)
	return s, mapErr(err)
}

func (t *sqlTx) GetLaneSessionBySessionIDForUpdate(ctx context.Context, sessionID string) (model.LaneSession, error) {
	s, err := t.s.lanes.GetBySessionForUpdateTx(ctx, t.tx, sessionID)
	return s, mapErr(err)
}

func (t *sqlTx) FindLaneByCustomer(ctx context.Context, customerID, exceptLaneID string) (model.LaneSession, error) {
	s, err := t.s.lanes.FindActiveByCustomerTx(ctx, t.tx, customerID, exceptLaneID)
	return s, mapErr(err)
}

func (t *sqlTx) SaveLaneSession(ctx context.Context, s model.LaneSession) error {
	return mapErr(t.s.lanes.SaveTx(ctx, t.tx, s))
}

func (t *sqlTx) GetResource(ctx context.Context, rt model.ResourceType, id string) (model.Resource, error) {
	r, err := t.s.resources.GetTx(ctx, t.tx, rt, id)
	return r, mapErr(err)
}

func (t *sqlTx) GetResourceForUpdate(ctx context.Context, rt model.ResourceType, id string) (model.Resource, error) {
	r, err := t.s.resources.GetForUpdateTx(ctx, t.tx, rt, id)
	return r, mapErr(err)
}

func (t *sqlTx) FindResourceByNumber(ctx context.Context, number string) (model.Resource, error) {
	r, err := t.s.resources.FindByNumberTx(ctx, t.tx, number)
	return r, mapErr(err)
}

func (t *sqlTx) UpdateResource(ctx context.Context, r model.Resource) error {
	return mapErr(t.s.resources.UpdateTx(ctx, t.tx, r))
}

func (t *sqlTx) CountInventory(ctx context.Context) ([]store.InventoryCount, error) {
	out, err := t.s.resources.CountTx(ctx, t.tx)
	return out, mapErr(err)
}

func (t *sqlTx) GetOpenVisitByCustomer(ctx context.Context, customerID string) (model.Visit, error) {
	v, err := t.s.visits.OpenByCustomerTx(ctx, t.tx, customerID)
	return v, mapErr(err)
}

func (t *sqlTx) GetVisitForUpdate(ctx context.Context, id string) (model.Visit, error) {
	v, err := t.s.visits.GetForUpdateTx(ctx, t.tx, id)
	return v, mapErr(err)
}

func (t *sqlTx) CreateVisit(ctx context.Context, v model.Visit) error {
	return mapErr(t.s.visits.CreateTx(ctx, t.tx, v))
}

func (t *sqlTx) UpdateVisit(ctx context.Context, v model.Visit) error {
	return mapErr(t.s.visits.UpdateTx(ctx, t.tx, v))
}

func (t *sqlTx) ListBlocks(ctx context.Context, visitID string) ([]model.OccupancyBlock, error) {
	out, err := t.s.visits.ListBlocksTx(ctx, t.tx, visitID)
	return out, mapErr(err)
}

func (t *sqlTx) GetBlock(ctx context.Context, id string) (model.OccupancyBlock, error) {
	b, err := t.s.visits.GetBlockTx(ctx, t.tx, id)
	return b, mapErr(err)
}

func (t *sqlTx) GetOpenBlockByResource(ctx context.Context, resourceID string) (model.OccupancyBlock, error) {
	b, err := t.s.visits.OpenBlockByResourceTx(ctx, t.tx, resourceID)
	return b, mapErr(err)
}

func (t *sqlTx) CreateBlock(ctx context.Context, b model.OccupancyBlock) error {
	return mapErr(t.s.visits.CreateBlockTx(ctx, t.tx, b))
}

func (t *sqlTx) UpdateBlock(ctx context.Context, b model.OccupancyBlock) error {
	return mapErr(t.s.visits.UpdateBlockTx(ctx, t.tx, b))
}

func (t *sqlTx) ScheduledEndsForTier(ctx context.Context, tier model.RentalType) ([]time.Time, error) {
	out, err := t.s.visits.ScheduledEndsTx(ctx, t.tx, tier)
	return out, mapErr(err)
}

func (t *sqlTx) CreateWaitlistEntry(ctx context.Context, w model.WaitlistEntry) error {
	return mapErr(t.s.waitlist.CreateTx(ctx, t.tx, w))
}

func (t *sqlTx) GetLiveWaitlistByVisit(ctx context.Context, visitID string) (model.WaitlistEntry, error) {
	w, err := t.s.waitlist.LiveByVisitTx(ctx, t.tx, visitID)
	return w, mapErr(err)
}

func (t *sqlTx) CancelWaitlistByVisit(ctx context.Context, visitID string, now time.Time) (int, error) {
	n, err := t.s.waitlist.CancelByVisitTx(ctx, t.tx, visitID, now)
	return n, mapErr(err)
}

func (t *sqlTx) CountLiveWaitlist(ctx context.Context, tier model.RentalType) (int, error) {
	n, err := t.s.waitlist.CountLiveTx(ctx, t.tx, tier)
	return n, mapErr(err)
}

func (t *sqlTx) CreatePaymentIntent(ctx context.Context, p model.PaymentIntent) error {
	return mapErr(t.s.payments.CreateTx(ctx, t.tx, p))
}

func (t *sqlTx) GetPaymentIntent(ctx context.Context, id string) (model.PaymentIntent, error) {
	p, err := t.s.payments.GetTx(ctx, t.tx, id)
	return p, mapErr(err)
}

func (t *sqlTx) GetPaymentIntentForUpdate(ctx context.Context, id string) (model.PaymentIntent, error) {
	p, err := t.s.payments.GetForUpdateTx(ctx, t.tx, id)
	return p, mapErr(err)
}

func (t *sqlTx) UpdatePaymentIntent(ctx context.Context, p model.PaymentIntent) error {
	return mapErr(t.s.payments.UpdateTx(ctx, t.tx, p))
}

func (t *sqlTx) CreateCheckoutRequest(ctx context.Context, r model.CheckoutRequest) error {
	return mapErr(t.s.checkouts.CreateTx(ctx, t.tx, r))
}

func (t *sqlTx) GetCheckoutRequestForUpdate(ctx context.Context, id string) (model.CheckoutRequest, error) {
	r, err := t.s.checkouts.GetForUpdateTx(ctx, t.tx, id)
	return r, mapErr(err)
}

func (t *sqlTx) GetOpenCheckoutRequestByOccupancy(ctx context.Context, occupancyID string) (model.CheckoutRequest, error) {
	r, err := t.s.checkouts.OpenByOccupancyTx(ctx, t.tx, occupancyID)
	return r, mapErr(err)
}

func (t *sqlTx) UpdateCheckoutRequest(ctx context.Context, r model.CheckoutRequest) error {
	return mapErr(t.s.checkouts.UpdateTx(ctx, t.tx, r))
}

func (t *sqlTx) InsertAudit(ctx context.Context, a model.AuditRecord) error {
	return mapErr(t.s.audit.InsertTx(ctx, t.tx, a))
}

package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// tx operates on the transaction's private copy of the state.  Row locks are
// implicit: the store mutex is held for the whole transaction.
type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

func (t *tx) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return model.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) GetCustomerForUpdate(ctx context.Context, id string) (model.Customer, error) {
	return t.GetCustomer(ctx, id)
}

func (t *tx) FindCustomersByScan(_ context.Context, scanHash, scanValue string) ([]model.Customer, error) {
	var byHash, byValue []model.Customer
	for _, c := range t.st.customers {
		if scanHash != "" && c.IDScanHash != nil && *c.IDScanHash == scanHash {
			byHash = append(byHash, c)
		} else if scanValue != "" && c.IDScanValue != nil && strings.EqualFold(*c.IDScanValue, scanValue) {
			byValue = append(byValue, c)
		}
	}
	out := byHash
	if len(out) == 0 {
		out = byValue
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) UpdateCustomer(_ context.Context, c model.Customer) error {
	if _, ok := t.st.customers[c.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.customers[c.ID] = c
	return nil
}

func (t *tx) GetLaneSessionForUpdate(_ context.Context, laneID string) (model.LaneSession, error) {
	s, ok := t.st.lanes[laneID]
	if !ok {
		return model.LaneSession{}, store.ErrNotFound
	}
	return cloneLane(s), nil
}

func (t *tx) GetLaneSessionBySessionIDForUpdate(_ context.Context, sessionID string) (model.LaneSession, error) {
	for _, s := range t.st.lanes {
		if s.SessionID == sessionID {
			return cloneLane(s), nil
		}
	}
	return model.LaneSession{}, store.ErrNotFound
}

func (t *tx) FindLaneByCustomer(_ context.Context, customerID, exceptLaneID string) (model.LaneSession, error) {
	for id, s := range t.st.lanes {
		if id == exceptLaneID || s.CustomerID == nil || *s.CustomerID != customerID {
			continue
		}
		if s.Status == model.LaneIdle || s.Status.Terminal() {
			continue
		}
		return cloneLane(s), nil
	}
	return model.LaneSession{}, store.ErrNotFound
}

func (t *tx) SaveLaneSession(_ context.Context, s model.LaneSession) error {
	t.st.lanes[s.LaneID] = cloneLane(s)
	return nil
}

func (t *tx) GetResource(_ context.Context, rt model.ResourceType, id string) (model.Resource, error) {
	r, ok := t.st.resources[resourceKey(rt, id)]
	if !ok {
		return model.Resource{}, store.ErrNotFound
	}
	return r, nil
}

func (t *tx) GetResourceForUpdate(ctx context.Context, rt model.ResourceType, id string) (model.Resource, error) {
	return t.GetResource(ctx, rt, id)
}

func (t *tx) FindResourceByNumber(_ context.Context, number string) (model.Resource, error) {
	number = strings.TrimSpace(number)
	for _, r := range t.st.resources {
		if strings.EqualFold(r.Number, number) {
			return r, nil
		}
	}
	return model.Resource{}, store.ErrNotFound
}

func (t *tx) UpdateResource(_ context.Context, r model.Resource) error {
	key := resourceKey(r.Type, r.ID)
	if _, ok := t.st.resources[key]; !ok {
		return store.ErrNotFound
	}
	t.st.resources[key] = r
	return nil
}

func (t *tx) CountInventory(_ context.Context) ([]store.InventoryCount, error) {
	type key struct {
		tier   model.RentalType
		status model.ResourceStatus
	}
	counts := map[key]*store.InventoryCount{}
	for _, r := range t.st.resources {
		k := key{r.Tier, r.Status}
		c, ok := counts[k]
		if !ok {
			c = &store.InventoryCount{Tier: r.Tier, Status: r.Status}
			counts[k] = c
		}
		c.Count++
		if r.Available() {
			c.Available++
		}
	}
	out := make([]store.InventoryCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (t *tx) GetOpenVisitByCustomer(_ context.Context, customerID string) (model.Visit, error) {
	for _, v := range t.st.visits {
		if v.CustomerID == customerID && v.Open() {
			return v, nil
		}
	}
	return model.Visit{}, store.ErrNotFound
}

func (t *tx) GetVisitForUpdate(_ context.Context, id string) (model.Visit, error) {
	v, ok := t.st.visits[id]
	if !ok {
		return model.Visit{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) CreateVisit(_ context.Context, v model.Visit) error {
	t.st.visits[v.ID] = v
	return nil
}

func (t *tx) UpdateVisit(_ context.Context, v model.Visit) error {
	if _, ok := t.st.visits[v.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.visits[v.ID] = v
	return nil
}

func (t *tx) ListBlocks(_ context.Context, visitID string) ([]model.OccupancyBlock, error) {
	return blocksOf(*t.st, visitID), nil
}

func (t *tx) GetBlock(_ context.Context, id string) (model.OccupancyBlock, error) {
	b, ok := t.st.blocks[id]
	if !ok {
		return model.OccupancyBlock{}, store.ErrNotFound
	}
	return b, nil
}

func (t *tx) GetOpenBlockByResource(_ context.Context, resourceID string) (model.OccupancyBlock, error) {
	var found *model.OccupancyBlock
	for _, b := range t.st.blocks {
		if b.ResourceID != resourceID || b.ClosedAt != nil {
			continue
		}
		if found == nil || b.EndsAt.After(found.EndsAt) {
			bb := b
			found = &bb
		}
	}
	if found == nil {
		return model.OccupancyBlock{}, store.ErrNotFound
	}
	return *found, nil
}

func (t *tx) CreateBlock(_ context.Context, b model.OccupancyBlock) error {
	t.st.blocks[b.ID] = b
	return nil
}

func (t *tx) UpdateBlock(_ context.Context, b model.OccupancyBlock) error {
	if _, ok := t.st.blocks[b.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.blocks[b.ID] = b
	return nil
}

func (t *tx) ScheduledEndsForTier(_ context.Context, tier model.RentalType) ([]time.Time, error) {
	latest := map[string]time.Time{}
	for _, b := range t.st.blocks {
		if b.ClosedAt != nil || b.RentalType != tier {
			continue
		}
		if cur, ok := latest[b.ResourceID]; !ok || b.EndsAt.After(cur) {
			latest[b.ResourceID] = b.EndsAt
		}
	}
	out := make([]time.Time, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (t *tx) CreateWaitlistEntry(_ context.Context, w model.WaitlistEntry) error {
	t.st.waitlist[w.ID] = w
	return nil
}

func (t *tx) GetLiveWaitlistByVisit(_ context.Context, visitID string) (model.WaitlistEntry, error) {
	for _, w := range t.st.waitlist {
		if w.VisitID == visitID && w.Live() {
			return w, nil
		}
	}
	return model.WaitlistEntry{}, store.ErrNotFound
}

func (t *tx) CancelWaitlistByVisit(_ context.Context, visitID string, now time.Time) (int, error) {
	n := 0
	for id, w := range t.st.waitlist {
		if w.VisitID == visitID && w.Live() {
			w.Status = model.WaitlistCancelled
			w.UpdatedAt = now
			t.st.waitlist[id] = w
			n++
		}
	}
	return n, nil
}

func (t *tx) CountLiveWaitlist(_ context.Context, tier model.RentalType) (int, error) {
	n := 0
	for _, w := range t.st.waitlist {
		if w.DesiredTier == tier && w.Live() {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreatePaymentIntent(_ context.Context, p model.PaymentIntent) error {
	t.st.payments[p.ID] = clonePayment(p)
	return nil
}

func (t *tx) GetPaymentIntent(_ context.Context, id string) (model.PaymentIntent, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return model.PaymentIntent{}, store.ErrNotFound
	}
	return clonePayment(p), nil
}

func (t *tx) GetPaymentIntentForUpdate(ctx context.Context, id string) (model.PaymentIntent, error) {
	return t.GetPaymentIntent(ctx, id)
}

func (t *tx) UpdatePaymentIntent(_ context.Context, p model.PaymentIntent) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.payments[p.ID] = clonePayment(p)
	return nil
}

func (t *tx) CreateCheckoutRequest(_ context.Context, r model.CheckoutRequest) error {
	t.st.checkouts[r.ID] = cloneCheckout(r)
	return nil
}

func (t *tx) GetCheckoutRequestForUpdate(_ context.Context, id string) (model.CheckoutRequest, error) {
	r, ok := t.st.checkouts[id]
	if !ok {
		return model.CheckoutRequest{}, store.ErrNotFound
	}
	return cloneCheckout(r), nil
}

func (t *tx) GetOpenCheckoutRequestByOccupancy(_ context.Context, occupancyID string) (model.CheckoutRequest, error) {
	for _, r := range t.st.checkouts {
		if r.OccupancyID == occupancyID && r.Open() {
			return cloneCheckout(r), nil
		}
	}
	return model.CheckoutRequest{}, store.ErrNotFound
}

func (t *tx) UpdateCheckoutRequest(_ context.Context, r model.CheckoutRequest) error {
	if _, ok := t.st.checkouts[r.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.checkouts[r.ID] = cloneCheckout(r)
	return nil
}

func (t *tx) InsertAudit(_ context.Context, a model.AuditRecord) error {
	t.st.audit = append(t.st.audit, a)
	return nil
}

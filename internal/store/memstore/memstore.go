// Package memstore is an in-memory implementation of store.Store.  A
// transaction holds the store-wide lock for its whole duration and works on
// a copy of the state that replaces the live state only on commit, so every
// transaction is trivially serializable and rolls back cleanly on error.
// It backs the test suite and STORE_DRIVER=memory development runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

type state struct {
	customers map[string]model.Customer
	lanes     map[string]model.LaneSession
	resources map[string]model.Resource
	visits    map[string]model.Visit
	blocks    map[string]model.OccupancyBlock
	waitlist  map[string]model.WaitlistEntry
	payments  map[string]model.PaymentIntent
	checkouts map[string]model.CheckoutRequest
	audit     []model.AuditRecord
}

func newState() state {
	return state{
		customers: map[string]model.Customer{},
		lanes:     map[string]model.LaneSession{},
		resources: map[string]model.Resource{},
		visits:    map[string]model.Visit{},
		blocks:    map[string]model.OccupancyBlock{},
		waitlist:  map[string]model.WaitlistEntry{},
		payments:  map[string]model.PaymentIntent{},
		checkouts: map[string]model.CheckoutRequest{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.lanes {
		c.lanes[k] = cloneLane(v)
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.visits {
		c.visits[k] = v
	}
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	for k, v := range s.waitlist {
		c.waitlist[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = clonePayment(v)
	}
	for k, v := range s.checkouts {
		c.checkouts[k] = cloneCheckout(v)
	}
	c.audit = append([]model.AuditRecord(nil), s.audit...)
	return c
}

func cloneLane(s model.LaneSession) model.LaneSession {
	s.CandidateIDs = append([]string(nil), s.CandidateIDs...)
	return s
}

func clonePayment(p model.PaymentIntent) model.PaymentIntent {
	p.Quote.Lines = append([]model.QuoteLine(nil), p.Quote.Lines...)
	return p
}

func cloneCheckout(r model.CheckoutRequest) model.CheckoutRequest {
	items := make(map[string]bool, len(r.Items))
	for k, v := range r.Items {
		items[k] = v
	}
	r.Items = items
	return r
}

// Store is the in-memory store.
type Store struct {
	mu    sync.Mutex
	state state
}

// New returns an empty store.
func New() *Store { return &Store{state: newState()} }

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&tx{st: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// PutCustomer seeds or replaces a customer.
func (s *Store) PutCustomer(c model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[c.ID] = c
}

// PutResource seeds or replaces a room or locker.
func (s *Store) PutResource(r model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.resources[resourceKey(r.Type, r.ID)] = r
}

// PutVisit seeds a visit together with its blocks.
func (s *Store) PutVisit(v model.Visit, blocks ...model.OccupancyBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.visits[v.ID] = v
	for _, b := range blocks {
		s.state.blocks[b.ID] = b
	}
}

// PutWaitlistEntry seeds a waitlist entry.
func (s *Store) PutWaitlistEntry(w model.WaitlistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.waitlist[w.ID] = w
}

// Customer returns a committed customer.
func (s *Store) Customer(id string) (model.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.customers[id]
	return c, ok
}

// Resource returns a committed resource.
func (s *Store) Resource(rt model.ResourceType, id string) (model.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.resources[resourceKey(rt, id)]
	return r, ok
}

// Lane returns the committed lane session row.
func (s *Store) Lane(laneID string) (model.LaneSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.lanes[laneID]
	return cloneLane(l), ok
}

// Visits returns every committed visit of a customer.
func (s *Store) Visits(customerID string) []model.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Visit
	for _, v := range s.state.visits {
		if v.CustomerID == customerID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Blocks returns the committed blocks of a visit.
func (s *Store) Blocks(visitID string) []model.OccupancyBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return blocksOf(s.state, visitID)
}

// Waitlist returns every committed waitlist entry of a visit.
func (s *Store) Waitlist(visitID string) []model.WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WaitlistEntry
	for _, w := range s.state.waitlist {
		if w.VisitID == visitID {
			out = append(out, w)
		}
	}
	return out
}

// Payment returns a committed payment intent.
func (s *Store) Payment(id string) (model.PaymentIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[id]
	return p, ok
}

// Audit returns committed audit records with the given action.
func (s *Store) Audit(action string) []model.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditRecord
	for _, a := range s.state.audit {
		if a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

func resourceKey(rt model.ResourceType, id string) string { return string(rt) + ":" + id }

func blocksOf(st state, visitID string) []model.OccupancyBlock {
	var out []model.OccupancyBlock
	for _, b := range st.blocks {
		if b.VisitID == visitID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

var _ store.Store = (*Store)(nil)

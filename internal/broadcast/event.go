// Package broadcast fans state changes out to everyone watching a lane: the
// customer kiosk, the employee register and the office dashboard.  Events
// are published only after the owning transaction has committed.
package broadcast

import (
	"context"
	"sync"
	"time"
)

// EventType tags an event on the wire.
type EventType string

const (
	SessionUpdated               EventType = "SESSION_UPDATED"
	SelectionProposed            EventType = "SELECTION_PROPOSED"
	SelectionLocked              EventType = "SELECTION_LOCKED"
	SelectionAcknowledged        EventType = "SELECTION_ACKNOWLEDGED"
	SelectionForced              EventType = "SELECTION_FORCED"
	AssignmentCreated            EventType = "ASSIGNMENT_CREATED"
	AssignmentFailed             EventType = "ASSIGNMENT_FAILED"
	CustomerConfirmationRequired EventType = "CUSTOMER_CONFIRMATION_REQUIRED"
	CustomerConfirmed            EventType = "CUSTOMER_CONFIRMED"
	CustomerDeclined             EventType = "CUSTOMER_DECLINED"
	CheckoutRequested            EventType = "CHECKOUT_REQUESTED"
	CheckoutClaimed              EventType = "CHECKOUT_CLAIMED"
	CheckoutUpdated              EventType = "CHECKOUT_UPDATED"
	CheckoutCompleted            EventType = "CHECKOUT_COMPLETED"
	WaitlistUpdated              EventType = "WAITLIST_UPDATED"
	RoomStatusChanged            EventType = "ROOM_STATUS_CHANGED"
)

// Event is the envelope delivered to observers.  LaneID is empty for
// global events.
type Event struct {
	Type      EventType `json:"type"`
	LaneID    string    `json:"laneId,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event stamped with now.
func New(t EventType, payload any, now time.Time) Event {
	return Event{Type: t, Payload: payload, Timestamp: now.UTC()}
}

// Broadcaster delivers events to observers.  Implementations must not block
// on slow observers.
type Broadcaster interface {
	// Broadcast delivers a global event to every observer.
	Broadcast(ctx context.Context, ev Event)
	// BroadcastToLane delivers an event to the observers of one lane and to
	// unscoped observers.
	BroadcastToLane(ctx context.Context, ev Event, laneID string)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Broadcast(context.Context, Event)               {}
func (Nop) BroadcastToLane(context.Context, Event, string) {}

// Recorder keeps every event in memory, in delivery order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Broadcast(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.LaneID = ""
	r.events = append(r.events, ev)
}

func (r *Recorder) BroadcastToLane(_ context.Context, ev Event, laneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.LaneID = laneID
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

package service

import (
	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/model"
)

// Event is a lane state machine input.
type Event string

const (
	EvIdentify        Event = "identify"
	EvAwaitCustomer   Event = "await_customer"
	EvSelect          Event = "select_rental"
	EvPropose         Event = "propose"
	EvConfirm         Event = "confirm"
	EvAcknowledge     Event = "acknowledge"
	EvAssign          Event = "assign"
	EvCustomerConfirm Event = "customer_confirm"
	EvCreateIntent    Event = "create_payment_intent"
	EvMarkPaid        Event = "mark_paid"
	EvSign            Event = "sign"
	EvComplete        Event = "complete"
	EvBypass          Event = "past_due_bypass"
	EvCancel          Event = "cancel"
)

type transition struct {
	From  model.LaneStatus
	Event Event
	To    model.LaneStatus
}

const (
	idle       = model.LaneIdle
	awaitCust  = model.LaneAwaitingCustomer
	active     = model.LaneActive
	awaitAssgn = model.LaneAwaitingAssignment
	awaitPay   = model.LaneAwaitingPayment
	awaitSign  = model.LaneAwaitingSignature
	completed  = model.LaneCompleted
	cancelled  = model.LaneCancelled
)

// transitions is the complete lane state machine.  Clear is not listed: it
// resets any status to IDLE.
var transitions = []transition{
	{idle, EvIdentify, active},
	{awaitCust, EvIdentify, active},
	{active, EvIdentify, active},
	{completed, EvIdentify, active},
	{cancelled, EvIdentify, active},

	{idle, EvAwaitCustomer, awaitCust},
	{awaitCust, EvAwaitCustomer, awaitCust},
	{active, EvAwaitCustomer, awaitCust},
	{completed, EvAwaitCustomer, awaitCust},
	{cancelled, EvAwaitCustomer, awaitCust},

	{active, EvSelect, awaitAssgn},
	{awaitAssgn, EvSelect, awaitAssgn},

	{active, EvPropose, active},
	{awaitAssgn, EvPropose, awaitAssgn},

	{active, EvConfirm, awaitAssgn},
	{awaitAssgn, EvConfirm, awaitAssgn},

	{active, EvAcknowledge, active},
	{awaitAssgn, EvAcknowledge, awaitAssgn},
	{awaitPay, EvAcknowledge, awaitPay},
	{awaitSign, EvAcknowledge, awaitSign},

	{awaitAssgn, EvAssign, awaitAssgn},
	{awaitAssgn, EvCustomerConfirm, awaitAssgn},

	{awaitAssgn, EvCreateIntent, awaitPay},
	{awaitPay, EvCreateIntent, awaitPay},

	{awaitPay, EvMarkPaid, awaitSign},

	{active, EvSign, active},
	{awaitAssgn, EvSign, awaitAssgn},
	{awaitPay, EvSign, awaitPay},
	{awaitSign, EvSign, awaitSign},

	{awaitPay, EvComplete, completed},
	{awaitSign, EvComplete, completed},

	{active, EvBypass, active},
	{awaitAssgn, EvBypass, awaitAssgn},
	{awaitPay, EvBypass, awaitPay},
	{awaitSign, EvBypass, awaitSign},

	{awaitCust, EvCancel, cancelled},
	{active, EvCancel, cancelled},
	{awaitAssgn, EvCancel, cancelled},
	{awaitPay, EvCancel, cancelled},
	{awaitSign, EvCancel, cancelled},
}

// Next returns the status reached from from on ev.
func Next(from model.LaneStatus, ev Event) (model.LaneStatus, bool) {
	for _, t := range transitions {
		if t.From == from && t.Event == ev {
			return t.To, true
		}
	}
	return "", false
}

// ValidTransition reports whether ev is accepted in status from.
func ValidTransition(from model.LaneStatus, ev Event) bool {
	_, ok := Next(from, ev)
	return ok
}

// advance moves the lane along ev or fails with CONFLICT naming the current
// status.
func advance(lane *model.LaneSession, ev Event) error {
	to, ok := Next(lane.Status, ev)
	if !ok {
		return apperr.Conflict("cannot %s while lane is %s", ev, lane.Status).With("status", lane.Status)
	}
	lane.Status = to
	return nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of a payment intent.
type PaymentStatus string

const (
	PaymentDue       PaymentStatus = "DUE"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// QuoteLine is a single priced line of a quote.
type QuoteLine struct {
	Code   string          `json:"code"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is the structured output of the pricing oracle.
type Quote struct {
	RentalType RentalType      `json:"rentalType"`
	Lines      []QuoteLine     `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	QuotedAt   time.Time       `json:"quotedAt"`
}

// PaymentIntent records the amount a lane session owes.  It must be PAID
// before an assignment is finalised into occupancy.
type PaymentIntent struct {
	ID        string          `json:"id"`
	LaneID    string          `json:"laneId"`
	SessionID string          `json:"sessionId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    PaymentStatus   `json:"status"`
	Quote     Quote           `json:"quote"`
	PaidBy    *string         `json:"paidBy,omitempty"`
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

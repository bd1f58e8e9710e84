package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutStatus is the state of a kiosk checkout request.
type CheckoutStatus string

const (
	CheckoutSubmitted CheckoutStatus = "SUBMITTED"
	CheckoutClaimed   CheckoutStatus = "CLAIMED"
	CheckoutCompleted CheckoutStatus = "COMPLETED"
	CheckoutCancelled CheckoutStatus = "CANCELLED"
)

// CheckoutRequest is raised by a customer at the kiosk and processed by one
// employee who holds a short-lived claim on it.
type CheckoutRequest struct {
	ID             string          `json:"id"`
	OccupancyID    string          `json:"occupancyId"`
	VisitID        string          `json:"visitId"`
	CustomerID     string          `json:"customerId"`
	ResourceID     string          `json:"resourceId"`
	ResourceType   ResourceType    `json:"resourceType"`
	Status         CheckoutStatus  `json:"status"`
	Items          map[string]bool `json:"items"`
	ItemsConfirmed bool            `json:"itemsConfirmed"`
	LateMinutes    int             `json:"lateMinutes"`
	LateFee        decimal.Decimal `json:"lateFee"`
	BanApplies     bool            `json:"banApplies"`
	FeePaid        bool            `json:"feePaid"`
	ClaimedBy      *string         `json:"claimedBy,omitempty"`
	ClaimExpiresAt *time.Time      `json:"claimExpiresAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Open reports whether the request still awaits completion.
func (r CheckoutRequest) Open() bool {
	return r.Status == CheckoutSubmitted || r.Status == CheckoutClaimed
}

// ClaimedByOther reports whether a different employee holds an unexpired
// claim at now.
func (r CheckoutRequest) ClaimedByOther(staffID string, now time.Time) bool {
	if r.ClaimedBy == nil || *r.ClaimedBy == staffID {
		return false
	}
	return r.ClaimExpiresAt != nil && r.ClaimExpiresAt.After(now)
}

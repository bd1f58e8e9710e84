package model

import "time"

// LaneStatus is the state of a lane's check-in session.
type LaneStatus string

const (
	LaneIdle               LaneStatus = "IDLE"
	LaneAwaitingCustomer   LaneStatus = "AWAITING_CUSTOMER"
	LaneActive             LaneStatus = "ACTIVE"
	LaneAwaitingAssignment LaneStatus = "AWAITING_ASSIGNMENT"
	LaneAwaitingPayment    LaneStatus = "AWAITING_PAYMENT"
	LaneAwaitingSignature  LaneStatus = "AWAITING_SIGNATURE"
	LaneCompleted          LaneStatus = "COMPLETED"
	LaneCancelled          LaneStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed until the lane
// is restarted or cleared.
func (s LaneStatus) Terminal() bool { return s == LaneCompleted || s == LaneCancelled }

// CheckinMode distinguishes first check-ins from renewals of an open visit.
type CheckinMode string

const (
	ModeInitial CheckinMode = "INITIAL"
	ModeRenewal CheckinMode = "RENEWAL"
)

// Actor is the party driving a negotiation step.
type Actor string

const (
	ActorCustomer Actor = "CUSTOMER"
	ActorEmployee Actor = "EMPLOYEE"
)

// Valid reports whether a is CUSTOMER or EMPLOYEE.
func (a Actor) Valid() bool { return a == ActorCustomer || a == ActorEmployee }

// LaneSession is the single check-in workflow row owned by a lane.  The row
// is keyed by lane and reused across customers; SessionID changes every time
// a new customer is identified on a lane whose previous session finished.
type LaneSession struct {
	LaneID                      string        `json:"laneId"`
	SessionID                   string        `json:"sessionId"`
	Status                      LaneStatus    `json:"status"`
	// StaffID is the employee who claimed the lane.
	StaffID                     *string       `json:"staffId,omitempty"`
	CustomerID                  *string       `json:"customerId,omitempty"`
	CustomerName                string        `json:"customerName,omitempty"`
	MembershipNumber            *string       `json:"membershipNumber,omitempty"`
	// Desired and backup tiers are frozen once SelectionConfirmed is set.
	DesiredRentalType           *RentalType   `json:"desiredRentalType,omitempty"`
	BackupRentalType            *RentalType   `json:"backupRentalType,omitempty"`
	WaitlistDesiredType         *RentalType   `json:"waitlistDesiredType,omitempty"`
	// Pending negotiation proposal.
	ProposedRentalType          *RentalType   `json:"proposedRentalType,omitempty"`
	ProposedBy                  *Actor        `json:"proposedBy,omitempty"`
	ProposedAt                  *time.Time    `json:"proposedAt,omitempty"`
	// SelectionConfirmed only goes back to false when the lane is cleared.
	SelectionConfirmed          bool          `json:"selectionConfirmed"`
	SelectionConfirmedBy        *Actor        `json:"selectionConfirmedBy,omitempty"`
	SelectionLockedAt           *time.Time    `json:"selectionLockedAt,omitempty"`
	AssignedResourceID          *string       `json:"assignedResourceId,omitempty"`
	AssignedResourceType        *ResourceType `json:"assignedResourceType,omitempty"`
	// CustomerConfirmationPending is set while a cross-tier assignment awaits the customer.
	CustomerConfirmationPending bool          `json:"customerConfirmationPending"`
	PaymentIntentID             *string       `json:"paymentIntentId,omitempty"`
	Signature                   *string       `json:"-"`
	SignedAt                    *time.Time    `json:"signedAt,omitempty"`
	// PastDueBypass is a staff override of the past-due block.
	PastDueBypass               bool          `json:"pastDueBypass"`
	CheckinMode                 CheckinMode   `json:"checkinMode"`
	VisitID                     *string       `json:"visitId,omitempty"`
	// Cumulative block hours and latest block end of the visit being renewed.
	RenewalHours                int           `json:"renewalHours,omitempty"`
	RenewalEndsAt               *time.Time    `json:"renewalEndsAt,omitempty"`
	// CandidateIDs are ambiguous scan matches awaiting a staff choice.
	CandidateIDs                []string      `json:"candidateIds,omitempty"`
	CreatedAt                   time.Time     `json:"createdAt"`
	UpdatedAt                   time.Time     `json:"updatedAt"`
}

// Reset nulls every per-customer field, leaving the lane row ready for the
// next customer.  The lane id and creation time are kept.
func (s *LaneSession) Reset(status LaneStatus, sessionID string, now time.Time) {
	*s = LaneSession{
		LaneID:      s.LaneID,
		SessionID:   sessionID,
		Status:      status,
		CheckinMode: ModeInitial,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   now,
	}
}

// HasCommitments reports whether the session holds a resource or payment
// that must be unwound before the lane can serve someone else.
func (s *LaneSession) HasCommitments() bool {
	return s.AssignedResourceID != nil || s.PaymentIntentID != nil
}

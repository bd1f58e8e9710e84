package model

import "time"

// WaitlistStatus tracks a waitlist entry.
type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "ACTIVE"
	WaitlistOffered   WaitlistStatus = "OFFERED"
	WaitlistCancelled WaitlistStatus = "CANCELLED"
)

// WaitlistEntry queues a checked-in customer for an upgrade to a tier that
// was unavailable at check-in.  Entries are cancelled when the visit ends.
type WaitlistEntry struct {
	ID          string         `json:"id"`
	VisitID     string         `json:"visitId"`
	CustomerID  string         `json:"customerId"`
	DesiredTier RentalType     `json:"desiredTier"`
	BackupTier  RentalType     `json:"backupTier"`
	Status      WaitlistStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Live reports whether the entry still counts toward the queue.
func (w WaitlistEntry) Live() bool {
	return w.Status == WaitlistActive || w.Status == WaitlistOffered
}

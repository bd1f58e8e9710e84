package model

import "time"

// Visit is one continuous stay of a customer.  A customer has at most one
// visit with EndedAt == nil.
type Visit struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// Open reports whether the visit has not been checked out.
func (v Visit) Open() bool { return v.EndedAt == nil }

// OccupancyBlock is a time-bounded assignment of the customer to a resource
// within a visit.  EndsAt is the scheduled checkout; ClosedAt is set when the
// visit is checked out.
type OccupancyBlock struct {
	ID           string       `json:"id"`
	VisitID      string       `json:"visitId"`
	ResourceID   string       `json:"resourceId"`
	ResourceType ResourceType `json:"resourceType"`
	RentalType   RentalType   `json:"rentalType"`
	SessionID    string       `json:"sessionId"`
	StartsAt     time.Time    `json:"startsAt"`
	EndsAt       time.Time    `json:"endsAt"`
	ClosedAt     *time.Time   `json:"closedAt,omitempty"`
}

// Hours returns the scheduled length of the block in whole hours.
func (b OccupancyBlock) Hours() int { return int(b.EndsAt.Sub(b.StartsAt) / time.Hour) }

// LatestBlock returns the block with the latest scheduled end.
func LatestBlock(blocks []OccupancyBlock) (OccupancyBlock, bool) {
	if len(blocks) == 0 {
		return OccupancyBlock{}, false
	}
	latest := blocks[0]
	for _, b := range blocks[1:] {
		if b.EndsAt.After(latest.EndsAt) {
			latest = b
		}
	}
	return latest, true
}

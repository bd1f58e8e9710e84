// Package queue publishes occupancy events to RabbitMQ and consumes them
// into an append-only log file.
package queue

// Routing keys of the occupancy exchange.
const (
	VisitStarted = "visit.started"
	VisitRenewed = "visit.renewed"
	VisitEnded   = "visit.ended"
)

// OccupancyEvent is published after a check-in completes, a renewal block is
// added or a visit is checked out.  It carries enough for downstream
// consumers (housekeeping boards, reporting) to act without querying the
// primary database.
type OccupancyEvent struct {
	Kind           string `json:"kind"`
	VisitID        string `json:"visit_id"`
	BlockID        string `json:"block_id,omitempty"`
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	LaneID         string `json:"lane_id,omitempty"`
	ResourceID     string `json:"resource_id"`
	ResourceType   string `json:"resource_type"`
	ResourceNumber string `json:"resource_number"`
	RentalType     string `json:"rental_type,omitempty"`
	StartsAt       string `json:"starts_at,omitempty"`
	EndsAt         string `json:"ends_at,omitempty"`
	LateMinutes    int    `json:"late_minutes,omitempty"`
	LateFee        string `json:"late_fee,omitempty"`
	BanApplied     bool   `json:"ban_applied,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

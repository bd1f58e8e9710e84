package model

import (
	"encoding/json"
	"time"
)

// AuditRecord captures a state change for later review.  Previous and Next
// hold JSON snapshots of the affected row.
type AuditRecord struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	StaffID    *string         `json:"staffId,omitempty"`
	Previous   json.RawMessage `json:"previous,omitempty"`
	Next       json.RawMessage `json:"next,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

package model

import "time"

// RentalType is the tier a customer rents.  LOCKER is served by lockers,
// every other tier by rooms of the same tier.
type RentalType string

const (
	RentalLocker   RentalType = "LOCKER"
	RentalStandard RentalType = "STANDARD"
	RentalDouble   RentalType = "DOUBLE"
	RentalSpecial  RentalType = "SPECIAL"
)

// RentalTypes lists every tier in display order.
var RentalTypes = []RentalType{RentalLocker, RentalStandard, RentalDouble, RentalSpecial}

// Valid reports whether t is a known tier.
func (t RentalType) Valid() bool {
	for _, rt := range RentalTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// ResourceType returns the kind of physical asset serving the tier.
func (t RentalType) ResourceType() ResourceType {
	if t == RentalLocker {
		return ResourceLocker
	}
	return ResourceRoom
}

// ResourceType distinguishes rooms from lockers.
type ResourceType string

const (
	ResourceRoom   ResourceType = "ROOM"
	ResourceLocker ResourceType = "LOCKER"
)

// Valid reports whether t is ROOM or LOCKER.
func (t ResourceType) Valid() bool { return t == ResourceRoom || t == ResourceLocker }

// ResourceStatus is the housekeeping status of a room or locker.
type ResourceStatus string

const (
	StatusClean    ResourceStatus = "CLEAN"
	StatusDirty    ResourceStatus = "DIRTY"
	StatusCleaning ResourceStatus = "CLEANING"
	StatusOccupied ResourceStatus = "OCCUPIED"
)

// Resource is a row of the resource ledger (rooms or lockers table).
//
// Fields:
//  ID                – primary key.
//  Type              – ROOM or LOCKER.
//  Number            – human facing number printed on the door/key tag.
//  Tier              – rental tier served by the resource.
//  Status            – housekeeping status.
//  AssignedTo        – customer currently bound to the resource (nullable).
//  AssignedSessionID – lane session that made the binding (nullable).
//  UpdatedAt         – last modification.
type Resource struct {
	ID                string         `json:"id"`
	Type              ResourceType   `json:"type"`
	Number            string         `json:"number"`
	Tier              RentalType     `json:"tier"`
	Status            ResourceStatus `json:"status"`
	AssignedTo        *string        `json:"assignedTo,omitempty"`
	AssignedSessionID *string        `json:"assignedSessionId,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Available reports whether the resource can accept a new assignment.
func (r Resource) Available() bool { return r.Status == StatusClean && r.AssignedTo == nil }

// PostUseStatus is the status a resource reverts to after checkout: rooms
// need cleaning, lockers are immediately reusable.
func (r Resource) PostUseStatus() ResourceStatus {
	if r.Type == ResourceRoom {
		return StatusDirty
	}
	return StatusClean
}

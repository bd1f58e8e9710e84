package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the identity record consulted during identification.
//
// Fields:
//  ID               – primary key.
//  FirstName        – given name.
//  LastName         – family name.
//  DOB              – date of birth (nullable when never captured).
//  MembershipNumber – club membership number (nullable for day guests).
//  BannedUntil      – ban expiry; a future value blocks check-in.
//  PastDueBalance   – amount owed from prior stays.
//  IDScanHash       – SHA-256 of the normalised ID scan payload.
//  IDScanValue      – licence/ID number extracted from the last scan.
//  Notes            – free text audit notes appended by staff and policies.
type Customer struct {
	ID               string          `json:"id"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	DOB              *time.Time      `json:"dob,omitempty"`
	MembershipNumber *string         `json:"membershipNumber,omitempty"`
	BannedUntil      *time.Time      `json:"bannedUntil,omitempty"`
	PastDueBalance   decimal.Decimal `json:"pastDueBalance"`
	IDScanHash       *string         `json:"-"`
	IDScanValue      *string         `json:"-"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DisplayName is the name shown on kiosk and register screens.
func (c Customer) DisplayName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// BannedAt reports whether the ban is still in force at now.
func (c Customer) BannedAt(now time.Time) bool {
	return c.BannedUntil != nil && c.BannedUntil.After(now)
}

// PastDue reports whether the customer owes a balance.
func (c Customer) PastDue() bool { return c.PastDueBalance.IsPositive() }

// AgeAt returns the customer's age in whole years at t, or -1 when the date
// of birth is unknown.
func (c Customer) AgeAt(t time.Time) int {
	if c.DOB == nil {
		return -1
	}
	dob := c.DOB.UTC()
	t = t.UTC()
	age := t.Year() - dob.Year()
	if t.Month() < dob.Month() || (t.Month() == dob.Month() && t.Day() < dob.Day()) {
		age--
	}
	return age
}

package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BanDuration is how long a customer is banned after a very late checkout.
const BanDuration = 30 * 24 * time.Hour

var (
	feeHalfHour = decimal.RequireFromString("15.00")
	feeHour     = decimal.RequireFromString("35.00")
)

// LateFee is the outcome of the late checkout policy.
type LateFee struct {
	Minutes  int             `json:"lateMinutes"`
	Fee      decimal.Decimal `json:"lateFee"`
	Ban      bool            `json:"banApplies"`
	BanUntil *time.Time      `json:"banUntil,omitempty"`
}

// LateMinutes returns how many whole minutes now is past the scheduled end,
// zero when on time.
func LateMinutes(scheduledEnd, now time.Time) int {
	if !now.After(scheduledEnd) {
		return 0
	}
	return int(now.Sub(scheduledEnd) / time.Minute)
}

// AssessLateFee applies the policy:
//
//	< 30 min   no fee
//	30-59 min  15.00
//	60-89 min  35.00
//	>= 90 min  35.00 and a 30 day ban
func AssessLateFee(scheduledEnd, now time.Time) LateFee {
	m := LateMinutes(scheduledEnd, now)
	out := LateFee{Minutes: m, Fee: decimal.Zero}
	switch {
	case m >= 90:
		out.Fee = feeHour
		out.Ban = true
		until := now.Add(BanDuration).UTC()
		out.BanUntil = &until
	case m >= 60:
		out.Fee = feeHour
	case m >= 30:
		out.Fee = feeHalfHour
	}
	return out
}

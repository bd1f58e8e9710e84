// Package pricing quotes rentals and assesses late checkout fees.  Every
// function here is pure: same inputs, same quote.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/clubdesk/internal/model"
)

// Line codes carried on quotes.
const (
	LineRental        = "RENTAL"
	LineRenewal       = "RENEWAL"
	LineYouthDiscount = "YOUTH_DISCOUNT"
	LineLateNight     = "LATE_NIGHT_DISCOUNT"
	LineDayMembership = "DAY_MEMBERSHIP"
)

var (
	basePrices = map[model.RentalType]decimal.Decimal{
		model.RentalLocker:   decimal.RequireFromString("24.00"),
		model.RentalStandard: decimal.RequireFromString("40.00"),
		model.RentalDouble:   decimal.RequireFromString("60.00"),
		model.RentalSpecial:  decimal.RequireFromString("85.00"),
	}
	dayMembershipFee  = decimal.RequireFromString("13.00")
	lateNightDiscount = decimal.RequireFromString("5.00")
	youthRate         = decimal.RequireFromString("0.25")
)

// Input is everything the oracle needs to price one block.
type Input struct {
	RentalType    model.RentalType
	Mode          model.CheckinMode
	Age           int // -1 when unknown
	HasMembership bool
	At            time.Time
}

// Oracle prices rentals.  Location decides what "weekday" and "late night"
// mean; it defaults to UTC.
type Oracle struct {
	taxRate decimal.Decimal
	loc     *time.Location
}

// New returns an oracle charging taxRate on the subtotal.
func New(taxRate decimal.Decimal, loc *time.Location) *Oracle {
	if loc == nil {
		loc = time.UTC
	}
	return &Oracle{taxRate: taxRate, loc: loc}
}

// BasePrice returns the per-block price of a tier, zero for unknown tiers.
func BasePrice(rt model.RentalType) decimal.Decimal { return basePrices[rt] }

// UpgradeFee is the base price difference from current to desired, never
// negative.
func UpgradeFee(desired, current model.RentalType) decimal.Decimal {
	d := BasePrice(desired).Sub(BasePrice(current))
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Quote prices one block.
func (o *Oracle) Quote(in Input) (model.Quote, error) {
	base, ok := basePrices[in.RentalType]
	if !ok {
		return model.Quote{}, fmt.Errorf("no price for rental type %q", in.RentalType)
	}
	q := model.Quote{RentalType: in.RentalType, QuotedAt: in.At.UTC()}

	if in.Mode == model.ModeRenewal {
		q.Lines = append(q.Lines, model.QuoteLine{
			Code: LineRenewal, Label: label(in.RentalType) + " renewal", Amount: base,
		})
		return o.total(q), nil
	}

	q.Lines = append(q.Lines, model.QuoteLine{Code: LineRental, Label: label(in.RentalType) + " rental", Amount: base})
	rental := base
	local := in.At.In(o.loc)
	if youth(in.Age) && weekday(local.Weekday()) {
		off := base.Mul(youthRate).Round(2)
		rental = rental.Sub(off)
		q.Lines = append(q.Lines, model.QuoteLine{Code: LineYouthDiscount, Label: "Youth weekday discount", Amount: off.Neg()})
	}
	if h := local.Hour(); h >= 2 && h < 6 {
		off := decimal.Min(lateNightDiscount, rental)
		q.Lines = append(q.Lines, model.QuoteLine{Code: LineLateNight, Label: "Late night discount", Amount: off.Neg()})
	}
	if !in.HasMembership {
		q.Lines = append(q.Lines, model.QuoteLine{Code: LineDayMembership, Label: "Day membership", Amount: dayMembershipFee})
	}
	return o.total(q), nil
}

func (o *Oracle) total(q model.Quote) model.Quote {
	sub := decimal.Zero
	for _, l := range q.Lines {
		sub = sub.Add(l.Amount)
	}
	q.Subtotal = sub
	q.Tax = sub.Mul(o.taxRate).Round(2)
	q.Total = sub.Add(q.Tax)
	return q
}

func youth(age int) bool { return age >= 18 && age <= 24 }

func weekday(d time.Weekday) bool { return d >= time.Monday && d <= time.Thursday }

func label(rt model.RentalType) string {
	switch rt {
	case model.RentalLocker:
		return "Locker"
	case model.RentalStandard:
		return "Standard room"
	case model.RentalDouble:
		return "Double room"
	case model.RentalSpecial:
		return "Special room"
	}
	return string(rt)
}

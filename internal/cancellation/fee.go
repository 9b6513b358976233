// Package cancellation classifies how late a cancellation is and decides
// whether it can be processed automatically.
package cancellation

import (
	"math"
	"time"
)

// Tier names the band a cancellation falls in.
type Tier string

const (
	TierFree      Tier = "FREE"
	TierHalf      Tier = "HALF"
	TierDayBefore Tier = "DAY_BEFORE"
	TierSameDay   Tier = "SAME_DAY"
)

// Quote is the fee classification of one cancellation.
type Quote struct {
	DaysUntilReservation int     `json:"days_until_reservation"`
	FeeRate              float64 `json:"fee_rate"`
	Tier                 Tier    `json:"tier"`
	Label                string  `json:"label"`
}

// Calculator quotes fees relative to midnight in the business location.
type Calculator struct {
	loc *time.Location
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Quote classifies a cancellation made at cancelDate for a lesson at
// reservationDate.  Only the calendar dates matter, so a cancellation at
// 23:59 the day before is one day out.
func (c *Calculator) Quote(reservationDate, cancelDate time.Time) Quote {
	days := c.daysBetween(cancelDate, reservationDate)
	q := Quote{DaysUntilReservation: days}
	switch {
	case days >= 4:
		q.FeeRate, q.Tier, q.Label = 0, TierFree, "no cancellation fee (4 or more days before)"
	case days >= 2:
		q.FeeRate, q.Tier, q.Label = 0.5, TierHalf, "50% cancellation fee (2 to 3 days before)"
	case days == 1:
		q.FeeRate, q.Tier, q.Label = 1.0, TierDayBefore, "100% cancellation fee (day before)"
	default:
		q.FeeRate, q.Tier, q.Label = 1.0, TierSameDay, "100% cancellation fee (same day)"
	}
	return q
}

// daysBetween counts calendar days from a to b in c.loc.  Dates are
// rebuilt in UTC before subtracting so DST transitions cannot shave an hour
// off a day.
func (c *Calculator) daysBetween(a, b time.Time) int {
	ay, am, ad := a.In(c.loc).Date()
	by, bm, bd := b.In(c.loc).Date()
	diff := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC).Sub(time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC))
	return int(math.Floor(diff.Hours() / 24))
}

// FeeAmounts splits total into the fee kept and the refund returned.
// Amounts are in the smallest currency unit.
func FeeAmounts(total int64, rate float64) (fee, refund int64) {
	fee = int64(math.Round(float64(total) * rate))
	if fee > total {
		fee = total
	}
	return fee, total - fee
}

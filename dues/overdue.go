/*
overdue.go - Overdue & Late-Fee Calculator

PURPOSE:
  Pure, read-time computation. No stored state beyond its inputs:

    isOverdue = status ∉ {paid, cancelled} AND now > period.dueDate

  The late-fee estimate is advisory: it is shown alongside a due, never
  silently added to its amount. The exact formula (rate basis, rounding,
  compounding) differs between organizations, so it is a pluggable strategy
  function rather than a hardcoded rule.
*/
package dues

import (
	"time"

	"github.com/shopspring/decimal"
)

// LateFeeStrategy computes an estimated fee from the remaining amount, the
// number of days past the due date, and the organization's daily rate.
// Implementations decide compounding and rounding.
type LateFeeStrategy func(remaining decimal.Decimal, overdueDays int, rate decimal.Decimal) decimal.Decimal

// SimpleLateFee is the default strategy: remaining × rate × overdueDays,
// rounded to two decimal places.
func SimpleLateFee(remaining decimal.Decimal, overdueDays int, rate decimal.Decimal) decimal.Decimal {
	return remaining.Mul(rate).Mul(decimal.NewFromInt(int64(overdueDays))).Round(2)
}

// IsOverdue reports whether the due is past its period's due date and still
// carries an obligation.
func IsOverdue(due *UnitDue, period *DuesPeriod, now time.Time) bool {
	if due.Status == DuePaid || due.Status == DueCancelled {
		return false
	}
	return now.After(period.DueDate)
}

// OverdueDays returns whole days elapsed since the due date, zero when not
// overdue.
func OverdueDays(period *DuesPeriod, now time.Time) int {
	if !now.After(period.DueDate) {
		return 0
	}
	return int(now.Sub(period.DueDate).Hours() / 24)
}

// EstimateLateFee computes the advisory fee for one due. Zero when the
// organization has no rate configured, the due is not overdue, or the
// elapsed days have not passed the grace window.
func EstimateLateFee(due *UnitDue, period *DuesPeriod, settings *OrgSettings, now time.Time, strategy LateFeeStrategy) decimal.Decimal {
	if settings == nil || !settings.LateFeeRate.IsPositive() {
		return decimal.Zero
	}
	if !IsOverdue(due, period, now) {
		return decimal.Zero
	}
	days := OverdueDays(period, now)
	if days <= settings.GraceDays {
		return decimal.Zero
	}
	if strategy == nil {
		strategy = SimpleLateFee
	}
	return strategy(due.Remaining(), days, settings.LateFeeRate)
}

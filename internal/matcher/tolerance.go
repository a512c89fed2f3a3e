package matcher

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance computes adaptive amount tolerance bands. Small amounts get wide
// percentage bands because flat fees dominate them; large amounts get narrow
// bands because a 3% gap on a large receivable is already another payment.
type Tolerance struct {
	bands      []ToleranceBand
	windowDays int
}

// NewTolerance builds a calculator from the configured bands.
func NewTolerance(config *ScoringConfig) *Tolerance {
	return &Tolerance{
		bands:      config.ToleranceBands,
		windowDays: config.DateWindowDays,
	}
}

// Percent returns the symmetric percentage tolerance for the given amount.
// With the default bands: amount <= 100 -> 0.15, <= 1000 -> 0.07,
// above -> 0.03. Pure function of the amount.
func (t *Tolerance) Percent(amount decimal.Decimal) float64 {
	abs := amount.Abs()

	for _, band := range t.bands {
		if band.Max.IsZero() {
			// Open-ended final band.
			return band.Percent
		}
		if abs.LessThanOrEqual(band.Max) {
			return band.Percent
		}
	}

	// Amount above every bounded band and no open-ended band configured;
	// fall back to the tightest band.
	return t.bands[len(t.bands)-1].Percent
}

// Bounds returns the inclusive [lower, upper] amount range for candidate
// selection around the given target amount.
func (t *Tolerance) Bounds(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	percent := decimal.NewFromFloat(t.Percent(amount))
	delta := amount.Mul(percent)
	return amount.Sub(delta), amount.Add(delta)
}

// AnticipationBounds returns the [lower, upper) amount range for the
// secondary anticipation candidate set: strictly below the normal lower
// bound, down to the maximum anticipation discount.
func (t *Tolerance) AnticipationBounds(amount decimal.Decimal, maxDiscount float64) (decimal.Decimal, decimal.Decimal) {
	normalLower, _ := t.Bounds(amount)
	floor := amount.Mul(decimal.NewFromFloat(1.0 - maxDiscount))
	return floor, normalLower
}

// DateWindow returns the inclusive [start, end] date range around the target
// date.
func (t *Tolerance) DateWindow(date time.Time) (time.Time, time.Time) {
	return date.AddDate(0, 0, -t.windowDays), date.AddDate(0, 0, t.windowDays)
}

// MonthWindow returns the [first, last] day of the target date's calendar
// month, used for anticipation candidates which settle within the month.
func (t *Tolerance) MonthWindow(date time.Time) (time.Time, time.Time) {
	year, month, _ := date.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, date.Location())
	last := first.AddDate(0, 1, -1)
	return first, last
}

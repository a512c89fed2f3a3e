package matcher

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryRecord is one confirmed reconciliation link replayed as a
// historical observation: the target side (sale or installment) and the
// transaction that settled it. Records feed the historical, seasonal,
// recurrence and anticipation factors. They are only ever aggregated into
// statistics; no model is fitted.
type HistoryRecord struct {
	TargetAmount      decimal.Decimal
	TargetDate        time.Time
	TxAmount          decimal.Decimal
	TxDate            time.Time
	TxText            string
	ManuallyConfirmed bool
}

// monthStat aggregates settlement behavior for one calendar month of
// transaction dates.
type monthStat struct {
	count            int
	totalDelayMonths int
	categoryCounts   map[int]int
}

// HistoryStats holds the aggregates the confidence scorer consults. Build
// one per batch run from recent confirmed links.
type HistoryStats struct {
	records []HistoryRecord

	anticipationCount     int
	anticipationDiscounts float64
	sameMonthAnticipation int

	months map[time.Month]*monthStat

	bands []ToleranceBand
}

// NewHistoryStats aggregates records into the statistics used by the scorer.
// The detector identifies anticipation settlements by their text markers.
func NewHistoryStats(records []HistoryRecord, config *ScoringConfig, detector *PatternDetector) *HistoryStats {
	stats := &HistoryStats{
		records: records,
		months:  make(map[time.Month]*monthStat),
		bands:   config.ToleranceBands,
	}

	for _, record := range records {
		if record.TargetAmount.IsZero() {
			continue
		}

		// Anticipation aggregates: discount size and same-month rate.
		if detector != nil && detector.IsAnticipation(record.TxText) {
			discount, _ := record.TargetAmount.Sub(record.TxAmount.Abs()).
				Div(record.TargetAmount).Float64()
			if discount > 0 {
				stats.anticipationCount++
				stats.anticipationDiscounts += discount
				if record.TxDate.Year() == record.TargetDate.Year() &&
					record.TxDate.Month() == record.TargetDate.Month() {
					stats.sameMonthAnticipation++
				}
			}
		}

		// Month-by-month settlement statistics keyed by transaction month.
		month := record.TxDate.Month()
		stat, ok := stats.months[month]
		if !ok {
			stat = &monthStat{categoryCounts: make(map[int]int)}
			stats.months[month] = stat
		}
		stat.count++
		stat.totalDelayMonths += monthsApart(record.TargetDate, record.TxDate)
		stat.categoryCounts[bandIndex(stats.bands, record.TargetAmount)]++
	}

	return stats
}

// Size returns the number of historical records.
func (hs *HistoryStats) Size() int {
	return len(hs.records)
}

// Records exposes the raw observations, used by the learning variant to
// build its training pool.
func (hs *HistoryStats) Records() []HistoryRecord {
	return hs.records
}

// AverageAnticipationDiscount returns the running mean discount of
// historically observed anticipations, and whether any were observed.
func (hs *HistoryStats) AverageAnticipationDiscount() (float64, bool) {
	if hs.anticipationCount == 0 {
		return 0, false
	}
	return hs.anticipationDiscounts / float64(hs.anticipationCount), true
}

// SameMonthAnticipationRate returns the fraction of historical anticipations
// settled within the target's calendar month.
func (hs *HistoryStats) SameMonthAnticipationRate() float64 {
	if hs.anticipationCount == 0 {
		return 0
	}
	return float64(hs.sameMonthAnticipation) / float64(hs.anticipationCount)
}

// CustomerRecurrence counts historical transactions whose text contains the
// customer name.
func (hs *HistoryStats) CustomerRecurrence(customerName string) int {
	if customerName == "" {
		return 0
	}

	count := 0
	for _, record := range hs.records {
		if ContainsNormalized(record.TxText, customerName) {
			count++
		}
	}
	return count
}

// CountSimilarValueGaps counts historical links with a relative value gap
// within 2 percentage points of the given gap.
func (hs *HistoryStats) CountSimilarValueGaps(gapPercent float64) int {
	count := 0
	for _, record := range hs.records {
		if record.TargetAmount.IsZero() {
			continue
		}
		historical, _ := record.TargetAmount.Sub(record.TxAmount.Abs()).Abs().
			Div(record.TargetAmount).Float64()
		if abs(historical-gapPercent) <= 0.02 {
			count++
		}
	}
	return count
}

// CountSimilarDateLags counts historical links whose settlement lag is
// within one day of the given lag.
func (hs *HistoryStats) CountSimilarDateLags(lagDays int) int {
	count := 0
	for _, record := range hs.records {
		historical := daysApart(record.TargetDate, record.TxDate)
		if historical-lagDays <= 1 && lagDays-historical <= 1 {
			count++
		}
	}
	return count
}

// MonthDelayAverage returns the mean settlement delay in months for
// transactions in the given calendar month, and whether any were observed.
func (hs *HistoryStats) MonthDelayAverage(month time.Month) (float64, bool) {
	stat, ok := hs.months[month]
	if !ok || stat.count == 0 {
		return 0, false
	}
	return float64(stat.totalDelayMonths) / float64(stat.count), true
}

// MonthCategoryRate returns the fraction of the month's historical links
// whose target fell in the same value category as the given amount.
func (hs *HistoryStats) MonthCategoryRate(month time.Month, amount decimal.Decimal) float64 {
	stat, ok := hs.months[month]
	if !ok || stat.count == 0 {
		return 0
	}
	return float64(stat.categoryCounts[bandIndex(hs.bands, amount)]) / float64(stat.count)
}

// bandIndex maps an amount onto its tolerance band, which doubles as the
// value category (small/medium/large under the default bands).
func bandIndex(bands []ToleranceBand, amount decimal.Decimal) int {
	abs := amount.Abs()
	for i, band := range bands {
		if band.Max.IsZero() || abs.LessThanOrEqual(band.Max) {
			return i
		}
	}
	return len(bands) - 1
}

// monthsApart returns the signed number of calendar months from a to b.
func monthsApart(a, b time.Time) int {
	return (b.Year()*12 + int(b.Month())) - (a.Year()*12 + int(a.Month()))
}

// daysApart returns the absolute number of calendar days between two dates.
func daysApart(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	diff := da.Sub(db)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

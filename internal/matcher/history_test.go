package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newTestStats(t *testing.T, records []HistoryRecord) *HistoryStats {
	t.Helper()

	config := DefaultScoringConfig()
	detector, err := NewPatternDetector(config)
	if err != nil {
		t.Fatalf("NewPatternDetector() error = %v", err)
	}
	return NewHistoryStats(records, config, detector)
}

func TestHistoryStatsEmpty(t *testing.T) {
	stats := newTestStats(t, nil)

	if stats.Size() != 0 {
		t.Errorf("Size() = %d, want 0", stats.Size())
	}
	if _, ok := stats.AverageAnticipationDiscount(); ok {
		t.Error("AverageAnticipationDiscount() reported data for empty history")
	}
	if rate := stats.SameMonthAnticipationRate(); rate != 0 {
		t.Errorf("SameMonthAnticipationRate() = %f, want 0", rate)
	}
}

func TestHistoryStatsAnticipationAggregates(t *testing.T) {
	records := []HistoryRecord{
		{
			// 10% discount, settled in the target's month.
			TargetAmount: decimal.NewFromInt(1000),
			TargetDate:   date(2026, time.March, 20),
			TxAmount:     decimal.NewFromInt(900),
			TxDate:       date(2026, time.March, 5),
			TxText:       "Antecipação venda 10",
		},
		{
			// 6% discount, settled the month before the target's.
			TargetAmount: decimal.NewFromInt(500),
			TargetDate:   date(2026, time.April, 15),
			TxAmount:     decimal.NewFromInt(470),
			TxDate:       date(2026, time.March, 28),
			TxText:       "antecipacao venda 11",
		},
		{
			// Regular settlement, no anticipation marker.
			TargetAmount: decimal.NewFromInt(200),
			TargetDate:   date(2026, time.March, 10),
			TxAmount:     decimal.NewFromInt(200),
			TxDate:       date(2026, time.March, 10),
			TxText:       "venda 12",
		},
	}
	stats := newTestStats(t, records)

	avg, ok := stats.AverageAnticipationDiscount()
	if !ok {
		t.Fatal("AverageAnticipationDiscount() found no anticipations")
	}
	if avg < 0.079 || avg > 0.081 {
		t.Errorf("AverageAnticipationDiscount() = %f, want ~0.08", avg)
	}

	if rate := stats.SameMonthAnticipationRate(); rate != 0.5 {
		t.Errorf("SameMonthAnticipationRate() = %f, want 0.5", rate)
	}
}

func TestHistoryStatsCustomerRecurrence(t *testing.T) {
	records := []HistoryRecord{
		{TargetAmount: decimal.NewFromInt(100), TxAmount: decimal.NewFromInt(100), TxText: "Recebido de Maria Silva"},
		{TargetAmount: decimal.NewFromInt(100), TxAmount: decimal.NewFromInt(100), TxText: "MARIA SILVA pix"},
		{TargetAmount: decimal.NewFromInt(100), TxAmount: decimal.NewFromInt(100), TxText: "João Pereira"},
	}
	stats := newTestStats(t, records)

	if got := stats.CustomerRecurrence("Maria Silva"); got != 2 {
		t.Errorf("CustomerRecurrence(Maria Silva) = %d, want 2", got)
	}
	if got := stats.CustomerRecurrence("Ana"); got != 0 {
		t.Errorf("CustomerRecurrence(Ana) = %d, want 0", got)
	}
	if got := stats.CustomerRecurrence(""); got != 0 {
		t.Errorf("CustomerRecurrence(empty) = %d, want 0", got)
	}
}

func TestHistoryStatsSimilarGapsAndLags(t *testing.T) {
	records := []HistoryRecord{
		{
			// 3% gap, 2-day lag.
			TargetAmount: decimal.NewFromInt(1000),
			TargetDate:   date(2026, time.May, 10),
			TxAmount:     decimal.NewFromInt(970),
			TxDate:       date(2026, time.May, 12),
		},
		{
			// Exact amount, same day.
			TargetAmount: decimal.NewFromInt(300),
			TargetDate:   date(2026, time.May, 1),
			TxAmount:     decimal.NewFromInt(300),
			TxDate:       date(2026, time.May, 1),
		},
	}
	stats := newTestStats(t, records)

	if got := stats.CountSimilarValueGaps(0.03); got != 1 {
		t.Errorf("CountSimilarValueGaps(0.03) = %d, want 1", got)
	}
	if got := stats.CountSimilarValueGaps(0.01); got != 2 {
		t.Errorf("CountSimilarValueGaps(0.01) = %d, want 2", got)
	}
	if got := stats.CountSimilarDateLags(2); got != 1 {
		t.Errorf("CountSimilarDateLags(2) = %d, want 1", got)
	}
	if got := stats.CountSimilarDateLags(1); got != 2 {
		t.Errorf("CountSimilarDateLags(1) = %d, want 2", got)
	}
	if got := stats.CountSimilarDateLags(10); got != 0 {
		t.Errorf("CountSimilarDateLags(10) = %d, want 0", got)
	}
}

func TestHistoryStatsMonthAggregates(t *testing.T) {
	records := []HistoryRecord{
		{
			// April target settled in May: one month of delay.
			TargetAmount: decimal.NewFromInt(50),
			TargetDate:   date(2026, time.April, 25),
			TxAmount:     decimal.NewFromInt(50),
			TxDate:       date(2026, time.May, 2),
		},
		{
			// May target settled in May.
			TargetAmount: decimal.NewFromInt(2000),
			TargetDate:   date(2026, time.May, 10),
			TxAmount:     decimal.NewFromInt(2000),
			TxDate:       date(2026, time.May, 10),
		},
	}
	stats := newTestStats(t, records)

	avg, ok := stats.MonthDelayAverage(time.May)
	if !ok {
		t.Fatal("MonthDelayAverage(May) found no data")
	}
	if avg != 0.5 {
		t.Errorf("MonthDelayAverage(May) = %f, want 0.5", avg)
	}

	if _, ok := stats.MonthDelayAverage(time.December); ok {
		t.Error("MonthDelayAverage(December) reported data for empty month")
	}

	// 50 falls in the small band, matching one of the two May records.
	if rate := stats.MonthCategoryRate(time.May, decimal.NewFromInt(80)); rate != 0.5 {
		t.Errorf("MonthCategoryRate(May, 80) = %f, want 0.5", rate)
	}
	if rate := stats.MonthCategoryRate(time.December, decimal.NewFromInt(80)); rate != 0 {
		t.Errorf("MonthCategoryRate(December, 80) = %f, want 0", rate)
	}
}

func TestBandIndex(t *testing.T) {
	bands := DefaultScoringConfig().ToleranceBands

	cases := []struct {
		amount string
		want   int
	}{
		{"50", 0},
		{"100", 0},
		{"100.01", 1},
		{"1000", 1},
		{"1000.01", 2},
		{"250000", 2},
	}
	for _, tc := range cases {
		amount, _ := decimal.NewFromString(tc.amount)
		if got := bandIndex(bands, amount); got != tc.want {
			t.Errorf("bandIndex(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"receivables-reconciler/internal/models"
)

// Target is the receivable side a candidate transaction is scored against:
// either a whole sale, or one installment of a sale.
type Target struct {
	Sale        *models.Sale
	Installment *models.Installment
}

// NewSaleTarget targets the sale as a whole.
func NewSaleTarget(sale *models.Sale) Target {
	return Target{Sale: sale}
}

// NewInstallmentTarget targets one installment of a sale.
func NewInstallmentTarget(sale *models.Sale, installment *models.Installment) Target {
	return Target{Sale: sale, Installment: installment}
}

// Amount returns the expected settlement amount: the installment amount, or
// the sale net amount (falling back to total when no net is recorded).
func (t Target) Amount() decimal.Decimal {
	if t.Installment != nil {
		return t.Installment.Amount
	}
	if !t.Sale.NetAmount.IsZero() {
		return t.Sale.NetAmount
	}
	return t.Sale.TotalAmount
}

// Date returns the expected settlement date: the installment due date, or
// the sale date.
func (t Target) Date() time.Time {
	if t.Installment != nil {
		return t.Installment.DueDate
	}
	return t.Sale.Date
}

// InstallmentNumber returns the installment sequence, or nil for whole-sale
// targets.
func (t Target) InstallmentNumber() *int {
	if t.Installment == nil {
		return nil
	}
	n := t.Installment.Number
	return &n
}

// Key identifies the target for deduplication and link bookkeeping.
func (t Target) Key() string {
	if t.Installment == nil {
		return t.Sale.ID
	}
	return fmt.Sprintf("%s#%d", t.Sale.ID, t.Installment.Number)
}

// searchText is the target-side text compared against transaction text.
func (t Target) searchText() string {
	parts := []string{t.Sale.Code, t.Sale.CustomerName}
	return strings.Join(parts, " ")
}

// patternTarget builds the capture-validation view of the target.
func (t Target) patternTarget() PatternTarget {
	pt := PatternTarget{
		SaleCode:     t.Sale.Code,
		CustomerName: t.Sale.CustomerName,
	}
	if t.Installment != nil {
		pt.InstallmentNumber = t.Installment.Number
		pt.InstallmentCount = len(t.Sale.Installments)
	}
	return pt
}

// MatchScore is the scored pairing of one candidate transaction with one
// target.
type MatchScore struct {
	Transaction *models.Transaction
	Target      Target

	Confidence float64
	Factors    models.FactorBreakdown

	// Anticipation marks candidates matched through the early-settlement
	// discount window rather than the standard tolerance band.
	Anticipation bool

	// DateDiffDays is kept for tie-breaking between equal confidences.
	DateDiffDays int
}

// ConfidenceScorer computes the weighted multi-factor confidence of a
// candidate transaction settling a target. All tables and weights come from
// the immutable config captured at construction.
type ConfidenceScorer struct {
	config    *ScoringConfig
	tolerance *Tolerance
	textSim   *TextSimilarity
	detector  *PatternDetector
}

// NewConfidenceScorer builds a scorer from the config. The config is cloned
// so later mutation by the caller cannot shift scores mid-batch.
func NewConfidenceScorer(config *ScoringConfig) (*ConfidenceScorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.Clone()

	detector, err := NewPatternDetector(config)
	if err != nil {
		return nil, err
	}

	return &ConfidenceScorer{
		config:    config,
		tolerance: NewTolerance(config),
		textSim:   NewTextSimilarity(config),
		detector:  detector,
	}, nil
}

// Config returns the scorer's effective configuration.
func (cs *ConfidenceScorer) Config() *ScoringConfig {
	return cs.config
}

// Detector returns the compiled vendor pattern detector.
func (cs *ConfidenceScorer) Detector() *PatternDetector {
	return cs.detector
}

// Tolerance returns the amount/date tolerance calculator.
func (cs *ConfidenceScorer) Tolerance() *Tolerance {
	return cs.tolerance
}

// TextSimilarity returns the text similarity scorer.
func (cs *ConfidenceScorer) TextSimilarity() *TextSimilarity {
	return cs.textSim
}

// Score computes the confidence of tx settling target. stats may be nil when
// no history is available; history-driven factors then score zero (neutral
// for the seasonal factor).
func (cs *ConfidenceScorer) Score(target Target, tx *models.Transaction, stats *HistoryStats) MatchScore {
	text := tx.SearchText()
	anticipation := cs.isAnticipationCandidate(target, tx, text)
	days := daysApart(target.Date(), tx.Date)

	factors := models.FactorBreakdown{
		ValueProximity:     cs.valueProximity(target, tx, stats, anticipation),
		DateProximity:      cs.dateProximity(target, tx, stats, anticipation, days),
		ChannelMatch:       cs.channelMatch(target, tx),
		CustomerRecurrence: cs.customerRecurrence(target, stats),
		HistoricalPattern:  cs.historicalPattern(target, tx, stats, days),
		TextSimilarity:     cs.textSim.Score(target.searchText(), text),
		VendorPattern:      cs.detector.Score(text, target.patternTarget()),
		SeasonalPattern:    cs.seasonalPattern(target, tx, stats),
	}

	w := cs.config.Weights
	confidence := factors.ValueProximity*w.ValueProximity +
		factors.DateProximity*w.DateProximity +
		factors.ChannelMatch*w.ChannelMatch +
		factors.CustomerRecurrence*w.CustomerRecurrence +
		factors.HistoricalPattern*w.HistoricalPattern +
		factors.TextSimilarity*w.TextSimilarity +
		factors.VendorPattern*w.VendorPattern +
		factors.SeasonalPattern*w.SeasonalPattern

	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	return MatchScore{
		Transaction:  tx,
		Target:       target,
		Confidence:   confidence,
		Factors:      factors,
		Anticipation: anticipation,
		DateDiffDays: days,
	}
}

// PrioritizeAnticipations applies the flat anticipation bonus across a
// scored batch. The bonus ranks anticipation receipts ahead of ordinary
// candidates, so it takes effect when a candidate has company: it applies to
// each anticipation score when the batch holds more than one. A lone
// anticipation stands on its base confidence.
func (cs *ConfidenceScorer) PrioritizeAnticipations(scores []MatchScore) {
	count := 0
	for _, score := range scores {
		if score.Anticipation {
			count++
		}
	}
	if count < 2 {
		return
	}

	for i := range scores {
		if !scores[i].Anticipation {
			continue
		}
		scores[i].Factors.AnticipationBonus = cs.config.AnticipationBonus
		scores[i].Confidence += cs.config.AnticipationBonus
		if scores[i].Confidence > 100 {
			scores[i].Confidence = 100
		}
	}
}

// Best scores every candidate and returns the highest-confidence one at or
// above the minimum. Ties break toward the smaller date difference, then
// toward the earlier candidate in input order.
func (cs *ConfidenceScorer) Best(target Target, candidates []*models.Transaction, stats *HistoryStats) (MatchScore, bool) {
	scores := make([]MatchScore, 0, len(candidates))
	for _, tx := range candidates {
		scores = append(scores, cs.Score(target, tx, stats))
	}
	cs.PrioritizeAnticipations(scores)

	var best MatchScore
	found := false

	for _, score := range scores {
		if score.Confidence < cs.config.MinConfidence {
			continue
		}
		if !found ||
			score.Confidence > best.Confidence ||
			(score.Confidence == best.Confidence && score.DateDiffDays < best.DateDiffDays) {
			best = score
			found = true
		}
	}

	return best, found
}

// isAnticipationCandidate reports whether tx looks like an early receipt of
// the target at a discount: below the standard tolerance floor but within the
// anticipation window, inside the target's calendar month, carrying an
// anticipation text marker.
func (cs *ConfidenceScorer) isAnticipationCandidate(target Target, tx *models.Transaction, text string) bool {
	amount := target.Amount()
	if amount.IsZero() {
		return false
	}
	txAmount := tx.AbsoluteAmount()

	lower, upper := cs.tolerance.AnticipationBounds(amount, cs.config.AnticipationMaxDiscount)
	if txAmount.LessThan(lower) || txAmount.GreaterThanOrEqual(upper) {
		return false
	}

	discount, _ := amount.Sub(txAmount).Div(amount).Float64()
	if discount < cs.config.AnticipationMinDiscount {
		return false
	}

	if !models.SameCalendarMonth(target.Date(), tx.Date) {
		return false
	}

	return cs.detector.IsAnticipation(text)
}

// valueProximity scores how close the transaction amount is to the expected
// amount. Anticipation candidates score on the discount instead: a discount
// near the historical average, or inside the accepted discount range, is
// treated as near-exact.
func (cs *ConfidenceScorer) valueProximity(target Target, tx *models.Transaction, stats *HistoryStats, anticipation bool) float64 {
	amount := target.Amount()
	if amount.IsZero() {
		return 0
	}
	txAmount := tx.AbsoluteAmount()

	if anticipation {
		discount, _ := amount.Sub(txAmount).Div(amount).Float64()
		if stats != nil {
			if avg, ok := stats.AverageAnticipationDiscount(); ok && abs(discount-avg) <= 0.02 {
				return 98
			}
		}
		if discount >= cs.config.AnticipationMinDiscount && discount <= cs.config.AnticipationMaxDiscount {
			return 95
		}
	}

	diff, _ := amount.Sub(txAmount).Abs().Div(amount).Float64()
	score := 100 - diff*1000
	if score < 0 {
		return 0
	}
	return score
}

// dateProximity scores calendar distance. Standard candidates lose 20 points
// per day. Anticipations inside the target month decay slower and earn a
// bonus when history shows the wallet habitually anticipates in-month.
func (cs *ConfidenceScorer) dateProximity(target Target, tx *models.Transaction, stats *HistoryStats, anticipation bool, days int) float64 {
	if anticipation && models.SameCalendarMonth(target.Date(), tx.Date) {
		score := 100 - float64(days)*10
		if score < 0 {
			score = 0
		}
		if stats != nil {
			rate := stats.SameMonthAnticipationRate()
			switch {
			case rate > 0.75:
				score += 50
			case rate > 0.5:
				score += 30
			}
		}
		if score > 100 {
			score = 100
		}
		return score
	}

	score := 100 - float64(days)*20
	if score < 0 {
		return 0
	}
	return score
}

// channelMatch scores payment-method compatibility with the sale channel.
// Unknown channels and transactions without a recorded method are neutral.
func (cs *ConfidenceScorer) channelMatch(target Target, tx *models.Transaction) float64 {
	sources, ok := cs.config.ChannelSources[strings.ToLower(strings.TrimSpace(target.Sale.Channel))]
	if !ok || len(sources) == 0 {
		return 50
	}

	method := strings.ToLower(strings.TrimSpace(tx.PaymentMethod))
	if method == "" {
		return 50
	}

	for _, source := range sources {
		if method == source {
			return 100
		}
	}
	return 0
}

// customerRecurrence scores how often this customer's name appears in
// historical settlement texts, 20 points per occurrence up to five.
func (cs *ConfidenceScorer) customerRecurrence(target Target, stats *HistoryStats) float64 {
	if stats == nil {
		return 0
	}
	count := stats.CustomerRecurrence(target.Sale.CustomerName)
	if count > 5 {
		count = 5
	}
	return float64(count) * 20
}

// historicalPattern scores how usual this candidate's value gap and
// settlement lag are among confirmed links, 10 points per similar
// observation.
func (cs *ConfidenceScorer) historicalPattern(target Target, tx *models.Transaction, stats *HistoryStats, days int) float64 {
	if stats == nil || stats.Size() == 0 {
		return 0
	}
	amount := target.Amount()
	if amount.IsZero() {
		return 0
	}

	gap, _ := amount.Sub(tx.AbsoluteAmount()).Abs().Div(amount).Float64()
	count := stats.CountSimilarValueGaps(gap) + stats.CountSimilarDateLags(days)

	score := float64(count) * 10
	if score > 100 {
		return 100
	}
	return score
}

// seasonalPattern scores whether settling in the transaction's month fits
// observed behavior. Same-month settlement is always a full match; otherwise
// the score blends the month's typical delay with how often targets of this
// value category settle in that month. No history for the month is neutral.
func (cs *ConfidenceScorer) seasonalPattern(target Target, tx *models.Transaction, stats *HistoryStats) float64 {
	if models.SameCalendarMonth(target.Date(), tx.Date) {
		return 100
	}
	if stats == nil {
		return 50
	}

	month := tx.Date.Month()
	avgDelay, ok := stats.MonthDelayAverage(month)
	if !ok {
		return 50
	}

	delay := float64(monthsApart(target.Date(), tx.Date))
	delayMatch := 100 - abs(delay-avgDelay)*50
	if delayMatch < 0 {
		delayMatch = 0
	}

	categoryRate := stats.MonthCategoryRate(month, target.Amount())

	return 0.7*delayMatch + 0.3*categoryRate*100
}

// Package matcher implements the scoring core of the reconciliation engine:
// adaptive amount tolerances, text similarity, vendor-pattern detection,
// multi-factor confidence scoring and near-duplicate suppression.
//
// All tuning knobs live on a ScoringConfig value passed in at construction.
// Nothing in this package keeps mutable package-level state, so multiple
// configurations (per-tenant tuning, strict vs relaxed runs) can coexist in
// one process.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FactorWeights defines the relative importance of each scoring factor.
// Weights must sum to approximately 1.0.
type FactorWeights struct {
	ValueProximity     float64 `json:"value_proximity"`
	DateProximity      float64 `json:"date_proximity"`
	ChannelMatch       float64 `json:"channel_match"`
	CustomerRecurrence float64 `json:"customer_recurrence"`
	HistoricalPattern  float64 `json:"historical_pattern"`
	TextSimilarity     float64 `json:"text_similarity"`
	VendorPattern      float64 `json:"vendor_pattern"`
	SeasonalPattern    float64 `json:"seasonal_pattern"`
}

// Sum returns the total of all weights.
func (w FactorWeights) Sum() float64 {
	return w.ValueProximity + w.DateProximity + w.ChannelMatch +
		w.CustomerRecurrence + w.HistoricalPattern + w.TextSimilarity +
		w.VendorPattern + w.SeasonalPattern
}

// Validate checks that every weight is in range and the total is close to 1.
func (w FactorWeights) Validate() error {
	weights := map[string]float64{
		"value_proximity":     w.ValueProximity,
		"date_proximity":      w.DateProximity,
		"channel_match":       w.ChannelMatch,
		"customer_recurrence": w.CustomerRecurrence,
		"historical_pattern":  w.HistoricalPattern,
		"text_similarity":     w.TextSimilarity,
		"vendor_pattern":      w.VendorPattern,
		"seasonal_pattern":    w.SeasonalPattern,
	}

	for name, value := range weights {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("weight %s must be between 0.0 and 1.0: %f", name, value)
		}
	}

	total := w.Sum()
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("factor weights should sum to 1.0, got %f", total)
	}

	return nil
}

// ToleranceBand maps an amount ceiling to a symmetric percentage tolerance.
// Bands are evaluated in order; the first band whose Max is >= the amount
// wins. A zero Max marks the open-ended final band.
type ToleranceBand struct {
	Max     decimal.Decimal `json:"max"`
	Percent float64         `json:"percent"`
}

// VendorPatternSpec declares one weighted textual convention recognized in
// transaction descriptions. Expr is compiled at detector construction.
type VendorPatternSpec struct {
	Name       string      `json:"name"`
	Expr       string      `json:"expr"`
	Importance float64     `json:"importance"`
	Kind       PatternKind `json:"kind"`
}

// PatternKind identifies what a vendor pattern's capture refers to.
type PatternKind string

const (
	PatternSaleCode     PatternKind = "sale_code"
	PatternOrderCode    PatternKind = "order_code"
	PatternCustomer     PatternKind = "customer"
	PatternInstallment  PatternKind = "installment"
	PatternAnticipation PatternKind = "anticipation"
)

// DuplicateConfig holds the thresholds for near-duplicate suppression against
// already-linked transactions.
type DuplicateConfig struct {
	// AmountTolerancePercent is the maximum relative amount difference for
	// two transactions to count as duplicates (0.01 = 1%).
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`

	// MinTextSimilarity is the text similarity score above which two
	// same-day, same-wallet transactions are considered copies.
	MinTextSimilarity float64 `json:"min_text_similarity"`
}

// LearningConfig gates and tunes the history-bootstrapped scoring variant.
type LearningConfig struct {
	// MinConfirmedLinks is the number of manually-confirmed links required
	// before the learning variant activates.
	MinConfirmedLinks int `json:"min_confirmed_links"`

	// MaxTrainingExamples caps the training pool to the most recent links.
	MaxTrainingExamples int `json:"max_training_examples"`

	// LookbackDays bounds how old a confirmed link may be to train on.
	LookbackDays int `json:"lookback_days"`

	// AcceptThreshold is the minimum logistic confidence ([0,1]) to link.
	AcceptThreshold float64 `json:"accept_threshold"`

	// Sharpness steers the logistic transform: confidence =
	// 1/(1+e^(-Sharpness*(score-0.5))).
	Sharpness float64 `json:"sharpness"`
}

// ScoringConfig holds every tunable of the matching core. Construct one with
// DefaultScoringConfig, adjust, then pass it to the scorer, detector and
// filter constructors. Treat values as immutable after construction; use
// Clone when a variant is needed.
type ScoringConfig struct {
	// Weights for the deterministic 8-factor scorer.
	Weights FactorWeights `json:"weights"`

	// MinConfidence is the acceptance threshold on the 0-100 confidence
	// scale.
	MinConfidence float64 `json:"min_confidence"`

	// ToleranceBands drive the adaptive amount tolerance (see Tolerance).
	ToleranceBands []ToleranceBand `json:"tolerance_bands"`

	// DateWindowDays is the symmetric candidate window around the due/sale
	// date.
	DateWindowDays int `json:"date_window_days"`

	// Anticipation bounds: a candidate below the normal tolerance is an
	// anticipation when its discount falls in
	// [AnticipationMinDiscount, AnticipationMaxDiscount] and its text
	// carries an anticipation marker.
	AnticipationMinDiscount float64 `json:"anticipation_min_discount"`
	AnticipationMaxDiscount float64 `json:"anticipation_max_discount"`

	// AnticipationBonus is the flat confidence bonus applied to
	// anticipation candidates when other anticipation candidates exist in
	// the same batch.
	AnticipationBonus float64 `json:"anticipation_bonus"`

	// HistoryLookbackDays bounds the confirmed links used for historical
	// factors.
	HistoryLookbackDays int `json:"history_lookback_days"`

	// ChannelSources maps a sale channel to the transaction payment
	// sources considered plausible for it.
	ChannelSources map[string][]string `json:"channel_sources"`

	// StopWords are dropped from word-token similarity.
	StopWords []string `json:"stop_words"`

	// VendorPatterns is the ordered weighted pattern list for the
	// detector.
	VendorPatterns []VendorPatternSpec `json:"vendor_patterns"`

	Duplicate DuplicateConfig `json:"duplicate"`
	Learning  LearningConfig  `json:"learning"`
}

// DefaultScoringConfig returns the engine's standard configuration.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Weights: FactorWeights{
			ValueProximity:     0.25,
			DateProximity:      0.20,
			ChannelMatch:       0.10,
			CustomerRecurrence: 0.10,
			HistoricalPattern:  0.10,
			TextSimilarity:     0.15,
			VendorPattern:      0.05,
			SeasonalPattern:    0.05,
		},
		MinConfidence: 75.0,
		ToleranceBands: []ToleranceBand{
			{Max: decimal.NewFromInt(100), Percent: 0.15},
			{Max: decimal.NewFromInt(1000), Percent: 0.07},
			{Percent: 0.03},
		},
		DateWindowDays:          5,
		AnticipationMinDiscount: 0.01,
		AnticipationMaxDiscount: 0.15,
		AnticipationBonus:       15.0,
		HistoryLookbackDays:     180,
		ChannelSources: map[string][]string{
			"presencial":  {"card", "pos", "cash", "debit_card", "credit_card"},
			"online":      {"pix", "boleto", "credit_card", "transfer"},
			"telefone":    {"pix", "boleto", "transfer"},
			"marketplace": {"marketplace", "transfer"},
		},
		StopWords: []string{
			"de", "da", "do", "das", "dos", "para", "com", "por",
			"recebido", "recebida", "pagamento", "pgto", "ref",
			"the", "for", "and",
		},
		VendorPatterns: []VendorPatternSpec{
			{Name: "sale_code", Expr: `venda\s*#?\s*(\d+)`, Importance: 1.0, Kind: PatternSaleCode},
			{Name: "order_code", Expr: `pedido\s*(?:n[o°º]?\.?\s*)?#?\s*(\d+)`, Importance: 0.9, Kind: PatternOrderCode},
			{Name: "customer", Expr: `cliente\s*:?\s*([\pL][\pL ]*)`, Importance: 0.7, Kind: PatternCustomer},
			{Name: "installment", Expr: `parcela\s*(\d+)\s+(?:de\s+)?(\d+)`, Importance: 0.6, Kind: PatternInstallment},
			{Name: "anticipation", Expr: `antecipa[cç][aã]o`, Importance: 0.5, Kind: PatternAnticipation},
		},
		Duplicate: DuplicateConfig{
			AmountTolerancePercent: 0.01,
			MinTextSimilarity:      70.0,
		},
		Learning: LearningConfig{
			MinConfirmedLinks:   30,
			MaxTrainingExamples: 1000,
			LookbackDays:        180,
			AcceptThreshold:     0.75,
			Sharpness:           10.0,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *ScoringConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min confidence must be between 0 and 100: %f", c.MinConfidence)
	}

	if len(c.ToleranceBands) == 0 {
		return fmt.Errorf("at least one tolerance band is required")
	}
	for i, band := range c.ToleranceBands {
		if band.Percent <= 0 || band.Percent >= 1 {
			return fmt.Errorf("tolerance band %d: percent must be in (0, 1): %f", i, band.Percent)
		}
	}

	if c.DateWindowDays <= 0 {
		return fmt.Errorf("date window days must be positive: %d", c.DateWindowDays)
	}

	if c.AnticipationMinDiscount < 0 || c.AnticipationMaxDiscount <= c.AnticipationMinDiscount {
		return fmt.Errorf("anticipation discount bounds are inverted: [%f, %f]",
			c.AnticipationMinDiscount, c.AnticipationMaxDiscount)
	}

	if c.HistoryLookbackDays <= 0 {
		return fmt.Errorf("history lookback days must be positive: %d", c.HistoryLookbackDays)
	}

	if len(c.VendorPatterns) == 0 {
		return fmt.Errorf("at least one vendor pattern is required")
	}
	for _, spec := range c.VendorPatterns {
		if spec.Importance <= 0 || spec.Importance > 1 {
			return fmt.Errorf("vendor pattern %s: importance must be in (0, 1]: %f", spec.Name, spec.Importance)
		}
	}

	if c.Duplicate.AmountTolerancePercent <= 0 {
		return fmt.Errorf("duplicate amount tolerance must be positive: %f", c.Duplicate.AmountTolerancePercent)
	}
	if c.Duplicate.MinTextSimilarity < 0 || c.Duplicate.MinTextSimilarity > 100 {
		return fmt.Errorf("duplicate text similarity must be in [0, 100]: %f", c.Duplicate.MinTextSimilarity)
	}

	if c.Learning.MinConfirmedLinks <= 0 {
		return fmt.Errorf("learning min confirmed links must be positive: %d", c.Learning.MinConfirmedLinks)
	}
	if c.Learning.MaxTrainingExamples <= 0 {
		return fmt.Errorf("learning max training examples must be positive: %d", c.Learning.MaxTrainingExamples)
	}
	if c.Learning.AcceptThreshold <= 0 || c.Learning.AcceptThreshold >= 1 {
		return fmt.Errorf("learning accept threshold must be in (0, 1): %f", c.Learning.AcceptThreshold)
	}
	if c.Learning.Sharpness <= 0 {
		return fmt.Errorf("learning sharpness must be positive: %f", c.Learning.Sharpness)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *ScoringConfig) Clone() *ScoringConfig {
	if c == nil {
		return nil
	}

	clone := *c

	clone.ToleranceBands = make([]ToleranceBand, len(c.ToleranceBands))
	copy(clone.ToleranceBands, c.ToleranceBands)

	clone.ChannelSources = make(map[string][]string, len(c.ChannelSources))
	for channel, sources := range c.ChannelSources {
		copied := make([]string, len(sources))
		copy(copied, sources)
		clone.ChannelSources[channel] = copied
	}

	clone.StopWords = make([]string, len(c.StopWords))
	copy(clone.StopWords, c.StopWords)

	clone.VendorPatterns = make([]VendorPatternSpec, len(c.VendorPatterns))
	copy(clone.VendorPatterns, c.VendorPatterns)

	return &clone
}

// String returns a human-readable description of the configuration
func (c *ScoringConfig) String() string {
	return fmt.Sprintf("ScoringConfig{MinConfidence: %.1f, DateWindow: %d days, Bands: %d, Patterns: %d}",
		c.MinConfidence, c.DateWindowDays, len(c.ToleranceBands), len(c.VendorPatterns))
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FactorBreakdown records the individual factor scores behind a confidence
// value. Each factor is normalized to [0, 100]. The breakdown is serialized
// onto the link so later review (and the learning variant) can see why a
// match was made.
type FactorBreakdown struct {
	ValueProximity     float64 `json:"valueProximity"`
	DateProximity      float64 `json:"dateProximity"`
	ChannelMatch       float64 `json:"channelMatch"`
	CustomerRecurrence float64 `json:"customerRecurrence"`
	HistoricalPattern  float64 `json:"historicalPattern"`
	TextSimilarity     float64 `json:"textSimilarity"`
	VendorPattern      float64 `json:"vendorPattern"`
	SeasonalPattern    float64 `json:"seasonalPattern"`

	// AnticipationBonus is the flat priority bonus applied when the
	// candidate is itself an anticipation among other anticipation
	// candidates.
	AnticipationBonus float64 `json:"anticipationBonus,omitempty"`
}

// Encode serializes the breakdown for storage.
func (f FactorBreakdown) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// ParseFactorBreakdown decodes a serialized breakdown.
func ParseFactorBreakdown(data []byte) (FactorBreakdown, error) {
	var f FactorBreakdown
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("invalid factor breakdown: %w", err)
	}
	return f, nil
}

// ReconciliationLink asserts the correspondence between one Transaction and
// one Sale, optionally pinned to a specific Installment.
//
// Invariants enforced by the store: a Transaction id appears in at most one
// active link; a (Sale, Installment) pair appears in at most one active link.
type ReconciliationLink struct {
	ID            uuid.UUID `json:"id"`
	SaleID        string    `json:"saleId"`
	TransactionID string    `json:"transactionId"`

	// InstallmentNumber is nil when the link covers a sale without
	// installments.
	InstallmentNumber *int `json:"installmentNumber,omitempty"`

	Confidence        float64         `json:"confidence"`
	Factors           FactorBreakdown `json:"factors"`
	ManuallyConfirmed bool            `json:"manuallyConfirmed"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// NewLink creates a link with a fresh id and creation timestamp.
func NewLink(saleID, transactionID string, installmentNumber *int, confidence float64, factors FactorBreakdown, manual bool) *ReconciliationLink {
	return &ReconciliationLink{
		ID:                uuid.New(),
		SaleID:            saleID,
		TransactionID:     transactionID,
		InstallmentNumber: installmentNumber,
		Confidence:        confidence,
		Factors:           factors,
		ManuallyConfirmed: manual,
		CreatedAt:         time.Now().UTC(),
	}
}

// Validate performs basic validation on the link
func (l *ReconciliationLink) Validate() error {
	if strings.TrimSpace(l.SaleID) == "" {
		return fmt.Errorf("link sale ID cannot be empty")
	}

	if strings.TrimSpace(l.TransactionID) == "" {
		return fmt.Errorf("link transaction ID cannot be empty")
	}

	if l.InstallmentNumber != nil && *l.InstallmentNumber <= 0 {
		return fmt.Errorf("link installment number must be positive, got %d", *l.InstallmentNumber)
	}

	if l.Confidence < 0 || l.Confidence > 100 {
		return fmt.Errorf("link confidence must be in [0, 100], got %f", l.Confidence)
	}

	return nil
}

// TargetKey identifies the (sale, installment) side of the link.
func (l *ReconciliationLink) TargetKey() string {
	if l.InstallmentNumber == nil {
		return l.SaleID
	}
	return fmt.Sprintf("%s#%d", l.SaleID, *l.InstallmentNumber)
}

// String returns a string representation of the link
func (l *ReconciliationLink) String() string {
	target := l.TargetKey()
	return fmt.Sprintf("Link{Sale: %s, Transaction: %s, Confidence: %.1f, Manual: %t}",
		target, l.TransactionID, l.Confidence, l.ManuallyConfirmed)
}

// LinkedTransaction pairs a link with its transaction, as loaded for the
// duplicate filter and the learning variant.
type LinkedTransaction struct {
	Link        *ReconciliationLink
	Transaction *Transaction
}

package matcher

import (
	"receivables-reconciler/internal/models"
)

// DuplicateFilter suppresses candidate transactions that look like repeat
// postings of a transaction already linked: same wallet, same calendar day,
// nearly identical amount and closely similar text. Such candidates are
// usually bank-side double entries and must not reconcile a second target.
type DuplicateFilter struct {
	config  DuplicateConfig
	textSim *TextSimilarity
}

// NewDuplicateFilter builds a filter from the scoring config.
func NewDuplicateFilter(config *ScoringConfig) *DuplicateFilter {
	return &DuplicateFilter{
		config:  config.Duplicate,
		textSim: NewTextSimilarity(config),
	}
}

// DuplicateOf returns the linked transaction the candidate duplicates, if
// any.
func (df *DuplicateFilter) DuplicateOf(tx *models.Transaction, linked []*models.LinkedTransaction) (*models.LinkedTransaction, bool) {
	for _, lt := range linked {
		if lt.Transaction == nil || lt.Transaction.ID == tx.ID {
			continue
		}
		if df.isDuplicate(tx, lt.Transaction) {
			return lt, true
		}
	}
	return nil, false
}

// Filter removes candidates that duplicate an already-linked transaction,
// preserving input order.
func (df *DuplicateFilter) Filter(candidates []*models.Transaction, linked []*models.LinkedTransaction) []*models.Transaction {
	if len(linked) == 0 {
		return candidates
	}

	kept := make([]*models.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if _, dup := df.DuplicateOf(tx, linked); dup {
			continue
		}
		kept = append(kept, tx)
	}
	return kept
}

func (df *DuplicateFilter) isDuplicate(tx, other *models.Transaction) bool {
	if tx.WalletID != other.WalletID {
		return false
	}
	if !models.SameCalendarDay(tx.Date, other.Date) {
		return false
	}

	otherAmount := other.AbsoluteAmount()
	if otherAmount.IsZero() {
		return false
	}
	diff, _ := tx.AbsoluteAmount().Sub(otherAmount).Abs().Div(otherAmount).Float64()
	if diff > df.config.AmountTolerancePercent {
		return false
	}

	return df.textSim.Score(tx.SearchText(), other.SearchText()) > df.config.MinTextSimilarity
}

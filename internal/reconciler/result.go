package reconciler

import (
	"time"

	"receivables-reconciler/internal/models"
)

// BatchDetails breaks a run's outcome down by cause.
type BatchDetails struct {
	SalesProcessed        int `json:"salesProcessed"`
	TransactionsProcessed int `json:"transactionsProcessed"`
	NewLinksCreated       int `json:"newLinksCreated"`
	AlreadyLinkedSkipped  int `json:"alreadyLinkedSkipped"`
	DuplicatesSuppressed  int `json:"duplicatesSuppressed"`
	NoMatchFound          int `json:"noMatchFound"`
	MultipleMatchesFound  int `json:"multipleMatchesFound"`
}

// MatchedTarget is one successful pairing in a batch run.
type MatchedTarget struct {
	SaleID            string  `json:"saleId"`
	SaleCode          string  `json:"saleCode"`
	InstallmentNumber *int    `json:"installmentNumber,omitempty"`
	TransactionID     string  `json:"transactionId"`
	Confidence        float64 `json:"confidence"`
	Anticipation      bool    `json:"anticipation"`
}

// UnmatchedTarget is a target the run could not settle, with the reason.
// Transaction-side entries from the single-transaction entry point carry
// the transaction ID instead of a sale reference.
type UnmatchedTarget struct {
	SaleID            string `json:"saleId,omitempty"`
	SaleCode          string `json:"saleCode,omitempty"`
	InstallmentNumber *int   `json:"installmentNumber,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	Reason            string `json:"reason"`
}

// Unmatched reasons.
const (
	ReasonNoCandidates  = "no_candidates"
	ReasonBelowFloor    = "below_confidence_floor"
	ReasonAlreadyLinked = "already_linked"
	ReasonDuplicate     = "duplicate_of_linked"
	ReasonError         = "error"
)

// BatchResult summarizes one reconciliation run.
type BatchResult struct {
	TotalProcessed int          `json:"totalProcessed"`
	Matched        int          `json:"matched"`
	Unmatched      int          `json:"unmatched"`
	Details        BatchDetails `json:"details"`

	MatchedTargets   []MatchedTarget   `json:"matchedTargets,omitempty"`
	UnmatchedTargets []UnmatchedTarget `json:"unmatchedTargets,omitempty"`

	// LearningApplied reports whether the learning variant scored this run.
	LearningApplied bool `json:"learningApplied"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	// Errors carries per-item failures that did not abort the run.
	Errors []string `json:"errors,omitempty"`
}

func (r *BatchResult) recordMatch(target matchedRef, txID string, confidence float64, anticipation bool) {
	r.Matched++
	r.Details.NewLinksCreated++
	r.MatchedTargets = append(r.MatchedTargets, MatchedTarget{
		SaleID:            target.saleID,
		SaleCode:          target.saleCode,
		InstallmentNumber: target.installment,
		TransactionID:     txID,
		Confidence:        confidence,
		Anticipation:      anticipation,
	})
}

func (r *BatchResult) recordUnmatched(target matchedRef, reason string) {
	r.Unmatched++
	r.UnmatchedTargets = append(r.UnmatchedTargets, UnmatchedTarget{
		SaleID:            target.saleID,
		SaleCode:          target.saleCode,
		InstallmentNumber: target.installment,
		Reason:            reason,
	})
}

func (r *BatchResult) recordUnmatchedTransaction(txID, reason string) {
	r.Unmatched++
	r.UnmatchedTargets = append(r.UnmatchedTargets, UnmatchedTarget{
		TransactionID: txID,
		Reason:        reason,
	})
}

// matchedRef is the minimal target identity carried into result entries.
type matchedRef struct {
	saleID      string
	saleCode    string
	installment *int
}

func refOf(sale *models.Sale, installment *int) matchedRef {
	return matchedRef{saleID: sale.ID, saleCode: sale.Code, installment: installment}
}

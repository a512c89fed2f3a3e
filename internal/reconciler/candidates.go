package reconciler

import (
	"context"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/models"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/logger"
)

const (
	defaultPageSize = 200

	// maxCandidatePages bounds the paging loop so a pathological window
	// cannot walk the whole table.
	maxCandidatePages = 50
)

// CandidateFinder selects the transactions worth scoring against a target:
// the primary tolerance window around the expected amount and date, plus the
// same-month anticipation window for marked early settlements.
type CandidateFinder struct {
	store     store.Store
	tolerance *matcher.Tolerance
	detector  *matcher.PatternDetector
	config    *matcher.ScoringConfig

	pageSize int
	log      logger.Logger
}

// NewCandidateFinder builds a finder sharing the scorer's compiled tables.
func NewCandidateFinder(st store.Store, scorer *matcher.ConfidenceScorer) *CandidateFinder {
	return &CandidateFinder{
		store:     st,
		tolerance: scorer.Tolerance(),
		detector:  scorer.Detector(),
		config:    scorer.Config(),
		pageSize:  defaultPageSize,
		log:       logger.GetGlobalLogger().WithComponent("candidate_finder"),
	}
}

// Find returns the union of the primary and anticipation candidate sets for
// target, deduplicated, in stable store order. walletID narrows the search
// when set.
func (f *CandidateFinder) Find(ctx context.Context, target matcher.Target, walletID string) ([]*models.Transaction, error) {
	amount := target.Amount()
	date := target.Date()

	minAmount, maxAmount := f.tolerance.Bounds(amount)
	from, to := f.tolerance.DateWindow(date)

	primary, err := f.collect(ctx, store.CandidateQuery{
		MinAmount: minAmount,
		MaxAmount: maxAmount,
		From:      from,
		To:        to,
		WalletID:  walletID,
	})
	if err != nil {
		return nil, err
	}

	anticipation, err := f.findAnticipations(ctx, target, walletID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(primary))
	candidates := make([]*models.Transaction, 0, len(primary)+len(anticipation))
	for _, tx := range primary {
		seen[tx.ID] = true
		candidates = append(candidates, tx)
	}
	for _, tx := range anticipation {
		if !seen[tx.ID] {
			candidates = append(candidates, tx)
		}
	}

	f.log.WithFields(logger.Fields{
		"target":       target.Key(),
		"primary":      len(primary),
		"anticipation": len(anticipation),
		"total":        len(candidates),
	}).Debug("Candidate selection complete")
	return candidates, nil
}

// findAnticipations queries the discounted amount band across the target's
// calendar month and keeps only transactions carrying an anticipation
// marker.
func (f *CandidateFinder) findAnticipations(ctx context.Context, target matcher.Target, walletID string) ([]*models.Transaction, error) {
	amount := target.Amount()

	// [0.85·A, A·(1−tol)): strictly below the primary band's floor.
	lower, upper := f.tolerance.AnticipationBounds(amount, f.config.AnticipationMaxDiscount)
	if lower.GreaterThanOrEqual(upper) {
		return nil, nil
	}
	monthStart, monthEnd := f.tolerance.MonthWindow(target.Date())

	window, err := f.collect(ctx, store.CandidateQuery{
		MinAmount: lower,
		MaxAmount: upper,
		From:      monthStart,
		To:        monthEnd,
		WalletID:  walletID,
	})
	if err != nil {
		return nil, err
	}

	var marked []*models.Transaction
	for _, tx := range window {
		if tx.AbsoluteAmount().GreaterThanOrEqual(upper) {
			// The store band is inclusive; the anticipation band is
			// half-open at the primary floor.
			continue
		}
		if f.detector.IsAnticipation(tx.SearchText()) {
			marked = append(marked, tx)
		}
	}
	return marked, nil
}

// collect walks the query page by page until a short page or the page cap.
func (f *CandidateFinder) collect(ctx context.Context, query store.CandidateQuery) ([]*models.Transaction, error) {
	var all []*models.Transaction

	query.Page = store.Page{Limit: f.pageSize}
	for page := 0; page < maxCandidatePages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := f.store.FindCandidateTransactions(ctx, query)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		if len(batch) < f.pageSize {
			return all, nil
		}
		query.Page = query.Page.Next()
	}

	f.log.WithFields(logger.Fields{
		"pages":      maxCandidatePages,
		"candidates": len(all),
	}).Warn("Candidate paging stopped at the page cap; window may be too wide")
	return all, nil
}

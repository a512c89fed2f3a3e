// Package reconciler orchestrates reconciliation runs: candidate selection,
// confidence scoring, duplicate suppression and link persistence over the
// store. The engine processes items sequentially and tallies per-item
// failures without aborting the run; only a failure of the store itself is
// fatal.
package reconciler

import (
	"context"
	"time"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/models"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

const (
	salePageSize = 100

	// maxSalePages bounds the unresolved-sale snapshot.
	maxSalePages = 100
)

// Options tune a single engine instance.
type Options struct {
	// WalletID narrows candidate selection to one wallet when set.
	WalletID string

	// UseLearning enables the adaptive acceptance layer. The layer still
	// stays inert until enough manually confirmed links exist.
	UseLearning bool
}

// Engine runs reconciliation over a store with a fixed scoring
// configuration.
type Engine struct {
	store      store.Store
	scorer     *matcher.ConfidenceScorer
	finder     *CandidateFinder
	writer     *LinkWriter
	duplicates *matcher.DuplicateFilter
	learning   *LearningScorer
	options    Options
	log        logger.Logger
}

// NewEngine builds an engine. The scoring config is validated and captured
// immutably by the scorer.
func NewEngine(st store.Store, config *matcher.ScoringConfig, options Options) (*Engine, error) {
	scorer, err := matcher.NewConfidenceScorer(config)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      st,
		scorer:     scorer,
		finder:     NewCandidateFinder(st, scorer),
		writer:     NewLinkWriter(st),
		duplicates: matcher.NewDuplicateFilter(scorer.Config()),
		learning:   NewLearningScorer(scorer.Config().Learning),
		options:    options,
		log:        logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// Writer exposes the link writer for the manual link surface.
func (e *Engine) Writer() *LinkWriter {
	return e.writer
}

// ReconcileAll processes every unresolved sale target and links the best
// acceptable candidate for each.
func (e *Engine) ReconcileAll(ctx context.Context) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{StartedAt: started}

	run, err := e.prepareRun(ctx, result)
	if err != nil {
		return nil, err
	}

	sales, err := e.snapshotUnresolvedSales(ctx)
	if err != nil {
		return nil, err
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "reconcile",
		Total:     int64(len(sales)),
		Logger:    e.log,
	})
	for _, sale := range sales {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		matched, err := e.reconcileSale(ctx, run, sale, result)
		if err != nil {
			// Store-level failures abort; anything else is tallied.
			if errors.IsPersistenceFailure(err) {
				progress.CompleteWithError(err)
				return nil, err
			}
			result.Errors = append(result.Errors, err.Error())
		}
		result.Details.SalesProcessed++
		progress.Increment(matched)
	}
	progress.Complete()

	result.Duration = time.Since(started)
	e.logRunSummary(result)
	return result, nil
}

// ReconcileSale processes the open targets of a single sale.
func (e *Engine) ReconcileSale(ctx context.Context, saleID string) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{StartedAt: started}

	sale, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	run, err := e.prepareRun(ctx, result)
	if err != nil {
		return nil, err
	}

	if _, err := e.reconcileSale(ctx, run, sale, result); err != nil {
		if errors.IsPersistenceFailure(err) {
			return nil, err
		}
		result.Errors = append(result.Errors, err.Error())
	}
	result.Details.SalesProcessed = 1
	result.Duration = time.Since(started)
	return result, nil
}

// ReconcileTransaction finds the best unresolved target for one transaction
// and links it. The transaction must exist and not be linked already.
func (e *Engine) ReconcileTransaction(ctx context.Context, transactionID string) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{StartedAt: started}

	tx, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if existing, err := e.store.GetLinkForTransaction(ctx, transactionID); err == nil && existing != nil {
		return nil, errors.AlreadyLinked("transaction", transactionID)
	} else if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}

	run, err := e.prepareRun(ctx, result)
	if err != nil {
		return nil, err
	}

	if dup, found := run.duplicateOf(e.duplicates, tx); found {
		e.log.WithFields(logger.Fields{
			"transaction": tx.ID,
			"linked":      dup.Transaction.ID,
		}).Info("Transaction suppressed as a near-duplicate of a linked posting")
		result.TotalProcessed = 1
		result.Details.TransactionsProcessed = 1
		result.Details.DuplicatesSuppressed = 1
		result.recordUnmatchedTransaction(tx.ID, ReasonDuplicate)
		result.Duration = time.Since(started)
		return result, nil
	}

	sales, err := e.snapshotUnresolvedSales(ctx)
	if err != nil {
		return nil, err
	}

	// Score the transaction against every unresolved target whose candidate
	// window admits it, then take the best.
	var scores []matcher.MatchScore
	for _, sale := range sales {
		for _, target := range e.saleTargets(sale) {
			if e.windowAdmits(target, tx) {
				scores = append(scores, e.scorer.Score(target, tx, run.stats))
			}
		}
	}
	e.scorer.PrioritizeAnticipations(scores)

	result.TotalProcessed = 1
	result.Details.TransactionsProcessed = 1

	best, accepted, found := e.selectBest(run, scores)
	if !found {
		result.Unmatched = 1
		result.Details.NoMatchFound++
		result.Duration = time.Since(started)
		return result, nil
	}
	if accepted > 1 {
		result.Details.MultipleMatchesFound++
	}

	if _, err := e.writer.WriteMatch(ctx, best); err != nil {
		if errors.IsAlreadyLinked(err) {
			result.Unmatched = 1
			result.Details.AlreadyLinkedSkipped++
			result.Duration = time.Since(started)
			return result, nil
		}
		return nil, err
	}

	result.recordMatch(refOf(best.Target.Sale, best.Target.InstallmentNumber()),
		best.Transaction.ID, best.Confidence, best.Anticipation)
	result.Duration = time.Since(started)
	return result, nil
}

// runState carries the per-run context shared across targets.
type runState struct {
	stats    *matcher.HistoryStats
	linked   []*models.LinkedTransaction
	learning bool
}

func (r *runState) duplicateOf(filter *matcher.DuplicateFilter, tx *models.Transaction) (*models.LinkedTransaction, bool) {
	return filter.DuplicateOf(tx, r.linked)
}

// prepareRun loads the shared run state: history aggregates from recent
// confirmed links, the linked-transaction set for the duplicate filter, and
// the learning gate outcome.
func (e *Engine) prepareRun(ctx context.Context, result *BatchResult) (*runState, error) {
	now := time.Now().UTC()

	pool, err := e.learning.TrainingPool(ctx, e.store, now)
	if err != nil {
		return nil, err
	}
	records := make([]matcher.HistoryRecord, 0, len(pool))
	for _, confirmed := range pool {
		if record, ok := historyRecordOf(confirmed); ok {
			records = append(records, record)
		}
	}
	stats := matcher.NewHistoryStats(records, e.scorer.Config(), e.scorer.Detector())

	linked, err := e.store.ListLinkedTransactions(ctx)
	if err != nil {
		return nil, err
	}

	run := &runState{stats: stats, linked: linked}
	if e.options.UseLearning {
		enabled, err := e.learning.Gate(ctx, e.store)
		if err != nil {
			return nil, err
		}
		run.learning = enabled
		result.LearningApplied = enabled
	}
	return run, nil
}

// historyRecordOf projects a confirmed link onto the history observation the
// aggregates consume.
func historyRecordOf(confirmed *store.ConfirmedLink) (matcher.HistoryRecord, bool) {
	if confirmed.Sale == nil || confirmed.Transaction == nil {
		return matcher.HistoryRecord{}, false
	}

	record := matcher.HistoryRecord{
		TargetAmount:      confirmed.Sale.NetAmount,
		TargetDate:        confirmed.Sale.Date,
		TxAmount:          confirmed.Transaction.Amount,
		TxDate:            confirmed.Transaction.Date,
		TxText:            confirmed.Transaction.SearchText(),
		ManuallyConfirmed: confirmed.Link.ManuallyConfirmed,
	}
	if confirmed.Link.InstallmentNumber != nil {
		inst, ok := confirmed.Sale.InstallmentByNumber(*confirmed.Link.InstallmentNumber)
		if !ok {
			return matcher.HistoryRecord{}, false
		}
		record.TargetAmount = inst.Amount
		record.TargetDate = inst.DueDate
	}
	return record, true
}

// snapshotUnresolvedSales pages the unresolved set into a fixed snapshot so
// links created during the run cannot shift the pagination under us.
func (e *Engine) snapshotUnresolvedSales(ctx context.Context) ([]*models.Sale, error) {
	var sales []*models.Sale

	page := store.Page{Limit: salePageSize}
	for i := 0; i < maxSalePages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := e.store.ListUnresolvedSales(ctx, page)
		if err != nil {
			return nil, err
		}
		sales = append(sales, batch...)

		if len(batch) < salePageSize {
			return sales, nil
		}
		page = page.Next()
	}

	e.log.WithField("sales", len(sales)).
		Warn("Unresolved-sale paging stopped at the page cap")
	return sales, nil
}

// saleTargets expands a sale into its open targets: one per unlinked
// installment, or the sale itself when it has none.
func (e *Engine) saleTargets(sale *models.Sale) []matcher.Target {
	if !sale.HasInstallments() {
		return []matcher.Target{matcher.NewSaleTarget(sale)}
	}

	targets := make([]matcher.Target, 0, len(sale.Installments))
	for _, inst := range sale.Installments {
		targets = append(targets, matcher.NewInstallmentTarget(sale, inst))
	}
	return targets
}

// reconcileSale processes every open target of one sale. It reports whether
// at least one target was matched.
func (e *Engine) reconcileSale(ctx context.Context, run *runState, sale *models.Sale, result *BatchResult) (bool, error) {
	anyMatched := false

	for _, target := range e.saleTargets(sale) {
		// A target may already be linked: installment sales in the snapshot
		// can be partially linked, and the single-sale entry point accepts
		// settled sales. Report those instead of silently passing over them.
		if _, err := e.store.GetLinkForTarget(ctx, sale.ID, target.InstallmentNumber()); err == nil {
			result.TotalProcessed++
			result.recordUnmatched(refOf(sale, target.InstallmentNumber()), ReasonAlreadyLinked)
			result.Details.AlreadyLinkedSkipped++
			continue
		} else if !errors.IsNotFound(err) {
			return anyMatched, err
		}

		result.TotalProcessed++
		matched, err := e.reconcileTarget(ctx, run, target, result)
		if err != nil {
			result.recordUnmatched(refOf(sale, target.InstallmentNumber()), ReasonError)
			return anyMatched, err
		}
		anyMatched = anyMatched || matched
	}
	return anyMatched, nil
}

func (e *Engine) reconcileTarget(ctx context.Context, run *runState, target matcher.Target, result *BatchResult) (bool, error) {
	ref := refOf(target.Sale, target.InstallmentNumber())

	candidates, err := e.finder.Find(ctx, target, e.options.WalletID)
	if err != nil {
		return false, err
	}
	candidates = e.duplicates.Filter(candidates, run.linked)
	result.Details.TransactionsProcessed += len(candidates)

	if len(candidates) == 0 {
		result.recordUnmatched(ref, ReasonNoCandidates)
		result.Details.NoMatchFound++
		return false, nil
	}

	scores := make([]matcher.MatchScore, 0, len(candidates))
	for _, tx := range candidates {
		scores = append(scores, e.scorer.Score(target, tx, run.stats))
	}
	e.scorer.PrioritizeAnticipations(scores)

	best, accepted, found := e.selectBest(run, scores)
	if !found {
		result.recordUnmatched(ref, ReasonBelowFloor)
		result.Details.NoMatchFound++
		return false, nil
	}
	if accepted > 1 {
		result.Details.MultipleMatchesFound++
	}

	link, err := e.writer.WriteMatch(ctx, best)
	if err != nil {
		if errors.IsAlreadyLinked(err) {
			// A racing writer took the transaction or the target; skip.
			result.recordUnmatched(ref, ReasonAlreadyLinked)
			result.Details.AlreadyLinkedSkipped++
			return false, nil
		}
		return false, err
	}

	run.linked = append(run.linked, &models.LinkedTransaction{
		Link:        link,
		Transaction: best.Transaction,
	})
	result.recordMatch(ref, best.Transaction.ID, best.Confidence, best.Anticipation)
	return true, nil
}

// selectBest applies the acceptance rule of the active variant: the
// deterministic confidence floor, or the learning probability threshold. It
// also reports how many candidates were acceptable, for ambiguity tallying.
func (e *Engine) selectBest(run *runState, scores []matcher.MatchScore) (matcher.MatchScore, int, bool) {
	if run.learning {
		return e.learning.Best(scores)
	}

	var best matcher.MatchScore
	accepted := 0
	found := false
	floor := e.scorer.Config().MinConfidence

	for _, score := range scores {
		if score.Confidence < floor {
			continue
		}
		accepted++
		if !found || score.Confidence > best.Confidence ||
			(score.Confidence == best.Confidence && score.DateDiffDays < best.DateDiffDays) {
			best = score
			found = true
		}
	}
	return best, accepted, found
}

// windowAdmits reports whether tx falls inside one of the target's candidate
// windows, mirroring the finder's store-side selection for the single
// transaction entry point.
func (e *Engine) windowAdmits(target matcher.Target, tx *models.Transaction) bool {
	if tx.Type != models.TransactionTypeIncome {
		return false
	}
	tolerance := e.scorer.Tolerance()
	amount := tx.AbsoluteAmount()

	lower, upper := tolerance.Bounds(target.Amount())
	from, to := tolerance.DateWindow(target.Date())
	if amount.GreaterThanOrEqual(lower) && amount.LessThanOrEqual(upper) &&
		!tx.Date.Before(from) && !tx.Date.After(to) {
		return true
	}

	antLower, antUpper := tolerance.AnticipationBounds(target.Amount(), e.scorer.Config().AnticipationMaxDiscount)
	return amount.GreaterThanOrEqual(antLower) && amount.LessThan(antUpper) &&
		models.SameCalendarMonth(target.Date(), tx.Date) &&
		e.scorer.Detector().IsAnticipation(tx.SearchText())
}

func (e *Engine) logRunSummary(result *BatchResult) {
	e.log.WithFields(logger.Fields{
		"processed": result.TotalProcessed,
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
		"links":     result.Details.NewLinksCreated,
		"no_match":  result.Details.NoMatchFound,
		"ambiguous": result.Details.MultipleMatchesFound,
		"duration":  result.Duration.String(),
	}).Info("Reconciliation run complete")
}

package reconciler

import (
	"context"
	"strconv"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/models"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

// LinkWriter persists reconciliation decisions. Every write path runs the
// same sequence: a fast pre-check against existing links, the atomic insert
// (whose unique constraints are the canonical already-linked signal), then
// the transaction flag update.
type LinkWriter struct {
	store store.Store
	log   logger.Logger
}

// NewLinkWriter creates a writer over the store.
func NewLinkWriter(st store.Store) *LinkWriter {
	return &LinkWriter{
		store: st,
		log:   logger.GetGlobalLogger().WithComponent("link_writer"),
	}
}

// WriteMatch persists an automatically scored match.
func (w *LinkWriter) WriteMatch(ctx context.Context, score matcher.MatchScore) (*models.ReconciliationLink, error) {
	sale := score.Target.Sale
	link := models.NewLink(
		sale.ID,
		score.Transaction.ID,
		score.Target.InstallmentNumber(),
		score.Confidence,
		score.Factors,
		false,
	)

	if err := w.write(ctx, link, sale.Code); err != nil {
		return nil, err
	}

	w.log.WithFields(logger.Fields{
		"sale_code":      sale.Code,
		"transaction_id": score.Transaction.ID,
		"confidence":     score.Confidence,
		"anticipation":   score.Anticipation,
	}).Info("Match linked")
	return link, nil
}

// CreateManualLink links a sale (or one of its installments) to a
// transaction on operator authority. Both sides must exist; the link carries
// full confidence and counts toward the learning gate.
func (w *LinkWriter) CreateManualLink(ctx context.Context, saleID, transactionID string, installmentNumber *int) (*models.ReconciliationLink, error) {
	sale, err := w.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if installmentNumber != nil {
		if _, ok := sale.InstallmentByNumber(*installmentNumber); !ok {
			return nil, errors.NotFound("installment", sale.ID+"#"+strconv.Itoa(*installmentNumber))
		}
	} else if sale.HasInstallments() {
		return nil, errors.ValidationError(errors.CodeMissingField, "installment", saleID, nil).
			WithSuggestion("This sale has installments; specify which one the transaction settles")
	}
	if _, err := w.store.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}

	link := models.NewLink(saleID, transactionID, installmentNumber, 100, models.FactorBreakdown{}, true)
	if err := w.write(ctx, link, sale.Code); err != nil {
		return nil, err
	}

	w.log.WithFields(logger.Fields{
		"sale_code":      sale.Code,
		"transaction_id": transactionID,
	}).Info("Manual link created")
	return link, nil
}

// RemoveLink deletes the link between a sale and a transaction and reverts
// the transaction to unreconciled.
func (w *LinkWriter) RemoveLink(ctx context.Context, saleID, transactionID string) error {
	if err := w.store.DeleteLink(ctx, saleID, transactionID); err != nil {
		return err
	}
	if err := w.store.ClearTransactionReconciled(ctx, transactionID); err != nil {
		return err
	}

	w.log.WithFields(logger.Fields{
		"sale_id":        saleID,
		"transaction_id": transactionID,
	}).Info("Link removed")
	return nil
}

func (w *LinkWriter) write(ctx context.Context, link *models.ReconciliationLink, saleCode string) error {
	// Fast path: surface an existing link before attempting the insert.
	// The unique constraints remain authoritative under concurrent writers.
	if existing, err := w.store.GetLinkForTransaction(ctx, link.TransactionID); err == nil && existing != nil {
		return errors.AlreadyLinked("transaction", link.TransactionID)
	} else if err != nil && !errors.IsNotFound(err) {
		return err
	}
	if existing, err := w.store.GetLinkForTarget(ctx, link.SaleID, link.InstallmentNumber); err == nil && existing != nil {
		return errors.AlreadyLinked("sale", link.TargetKey())
	} else if err != nil && !errors.IsNotFound(err) {
		return err
	}

	if err := w.store.InsertLink(ctx, link); err != nil {
		return err
	}
	return w.store.MarkTransactionReconciled(ctx, link.TransactionID, saleCode)
}

package reconciler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/models"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.TextFormat,
		Output: logger.StderrOutput,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.SetGlobalLogger(log)

	s, err := store.OpenSQLite(":memory:", log)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, s *store.SQLiteStore, options Options) *Engine {
	t.Helper()

	engine, err := NewEngine(s, matcher.DefaultScoringConfig(), options)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func addSale(t *testing.T, s *store.SQLiteStore, id, code string, amount int64, date time.Time, installments ...*models.Installment) *models.Sale {
	t.Helper()

	sale := &models.Sale{
		ID:           id,
		Code:         code,
		CustomerName: "Maria Silva",
		Channel:      "online",
		Date:         date,
		TotalAmount:  decimal.NewFromInt(amount),
		NetAmount:    decimal.NewFromInt(amount),
		Installments: installments,
	}
	if err := s.SaveSale(context.Background(), sale); err != nil {
		t.Fatalf("SaveSale(%s) error = %v", id, err)
	}
	return sale
}

func addTx(t *testing.T, s *store.SQLiteStore, id string, amount int64, date time.Time, description string) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		ID:            id,
		WalletID:      "wallet-1",
		Date:          date,
		Amount:        decimal.NewFromInt(amount),
		Type:          models.TransactionTypeIncome,
		Description:   description,
		PaymentMethod: "pix",
	}
	if err := s.SaveTransaction(context.Background(), tx); err != nil {
		t.Fatalf("SaveTransaction(%s) error = %v", id, err)
	}
	return tx
}

func TestReconcileAllExactMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	tx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.TotalProcessed != 1 || result.Matched != 1 || result.Unmatched != 0 {
		t.Errorf("result = %d processed / %d matched / %d unmatched, want 1/1/0",
			result.TotalProcessed, result.Matched, result.Unmatched)
	}
	if result.Details.NewLinksCreated != 1 || result.Details.SalesProcessed != 1 {
		t.Errorf("details = %+v", result.Details)
	}

	link, err := s.GetLinkForTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction() error = %v", err)
	}
	if link.SaleID != sale.ID || link.ManuallyConfirmed {
		t.Errorf("link = %+v", link)
	}
	if link.Confidence < 75 {
		t.Errorf("link confidence = %f, want >= 75", link.Confidence)
	}

	flagged, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !flagged.Reconciled || flagged.ReconciledSaleCode != sale.Code {
		t.Errorf("transaction not flagged: reconciled=%v code=%q",
			flagged.Reconciled, flagged.ReconciledSaleCode)
	}
}

func TestReconcileAllCodeReferenceMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A posting that names only the sale code: the reference code must carry
	// the vendor-pattern factor at full strength on its own.
	sale := &models.Sale{
		ID:          "sale-1",
		Code:        "1001",
		Channel:     "online",
		Date:        day(2026, time.March, 10),
		TotalAmount: decimal.NewFromInt(1000),
		NetAmount:   decimal.NewFromInt(1000),
	}
	if err := s.SaveSale(ctx, sale); err != nil {
		t.Fatalf("SaveSale() error = %v", err)
	}
	tx := addTx(t, s, "tx-1", 1000, day(2026, time.March, 11), "PIX recebido venda #1001")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 1 || result.Details.NewLinksCreated != 1 {
		t.Fatalf("matched = %d, links = %d, want 1/1 (unmatched: %+v)",
			result.Matched, result.Details.NewLinksCreated, result.UnmatchedTargets)
	}

	link, err := s.GetLinkForTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction() error = %v", err)
	}
	if link.Factors.VendorPattern != 100 {
		t.Errorf("VendorPattern = %f, want 100 for a lone matching code", link.Factors.VendorPattern)
	}
	if link.Confidence < 75 {
		t.Errorf("link confidence = %f, want >= 75", link.Confidence)
	}
}

func TestReconcileAllNoCandidates(t *testing.T) {
	s := newTestStore(t)

	addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	// Out of the amount band and out of the date window.
	addTx(t, s, "tx-1", 100, day(2026, time.March, 1), "deposito")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 0 || result.Unmatched != 1 {
		t.Errorf("matched/unmatched = %d/%d, want 0/1", result.Matched, result.Unmatched)
	}
	if result.Details.NoMatchFound != 1 {
		t.Errorf("NoMatchFound = %d, want 1", result.Details.NoMatchFound)
	}
	if len(result.UnmatchedTargets) != 1 || result.UnmatchedTargets[0].Reason != ReasonNoCandidates {
		t.Errorf("UnmatchedTargets = %+v", result.UnmatchedTargets)
	}
}

func TestReconcileAllBelowConfidenceFloor(t *testing.T) {
	s := newTestStore(t)

	sale := addSale(t, s, "sale-1", "1001", 1000, day(2026, time.June, 10))
	// In the window but weak on every factor: amount at the band edge, three
	// days off, incompatible method, unrelated text.
	weak := addTx(t, s, "tx-1", 970, day(2026, time.June, 13), "transferencia avulsa")
	weak.PaymentMethod = "cash"
	if err := s.SaveTransaction(context.Background(), weak); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 0 || result.Unmatched != 1 {
		t.Errorf("matched/unmatched = %d/%d, want 0/1", result.Matched, result.Unmatched)
	}
	if len(result.UnmatchedTargets) != 1 || result.UnmatchedTargets[0].Reason != ReasonBelowFloor {
		t.Errorf("UnmatchedTargets = %+v", result.UnmatchedTargets)
	}
	if _, err := s.GetLinkForTarget(context.Background(), sale.ID, nil); !errors.IsNotFound(err) {
		t.Errorf("expected no link, got err = %v", err)
	}
}

func TestReconcileAllAnticipation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 1000, day(2026, time.September, 10))
	// 10% discount, same calendar month, marked as an anticipation. A second
	// marked candidate puts the priority bonus in play for both.
	tx := addTx(t, s, "tx-1", 900, day(2026, time.September, 5), "Antecipação venda #1001 Maria Silva")
	addTx(t, s, "tx-2", 920, day(2026, time.September, 3), "Antecipação venda #1001")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 1 {
		t.Fatalf("matched = %d, want 1 (unmatched: %+v)", result.Matched, result.UnmatchedTargets)
	}
	if len(result.MatchedTargets) != 1 || !result.MatchedTargets[0].Anticipation {
		t.Errorf("MatchedTargets = %+v, want anticipation flag set", result.MatchedTargets)
	}

	link, err := s.GetLinkForTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction() error = %v", err)
	}
	if link.SaleID != sale.ID {
		t.Errorf("link sale = %s, want %s", link.SaleID, sale.ID)
	}
	if link.Factors.AnticipationBonus == 0 {
		t.Error("anticipation bonus missing from persisted factors")
	}
}

func TestReconcileAllInstallments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "777", 600, day(2026, time.May, 15),
		&models.Installment{SaleID: "sale-1", Number: 1, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.June, 15)},
		&models.Installment{SaleID: "sale-1", Number: 2, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.July, 15)},
	)
	tx1 := addTx(t, s, "tx-1", 300, day(2026, time.June, 15), "Pgto venda 777 Maria Silva parcela 1/2")
	tx2 := addTx(t, s, "tx-2", 300, day(2026, time.July, 15), "Pgto venda 777 Maria Silva parcela 2/2")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.TotalProcessed != 2 || result.Matched != 2 {
		t.Fatalf("processed/matched = %d/%d, want 2/2 (unmatched: %+v)",
			result.TotalProcessed, result.Matched, result.UnmatchedTargets)
	}

	link1, err := s.GetLinkForTransaction(ctx, tx1.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction(tx-1) error = %v", err)
	}
	if link1.InstallmentNumber == nil || *link1.InstallmentNumber != 1 {
		t.Errorf("tx-1 installment = %v, want 1", link1.InstallmentNumber)
	}
	link2, err := s.GetLinkForTransaction(ctx, tx2.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction(tx-2) error = %v", err)
	}
	if link2.InstallmentNumber == nil || *link2.InstallmentNumber != 2 {
		t.Errorf("tx-2 installment = %v, want 2", link2.InstallmentNumber)
	}
	if link1.SaleID != sale.ID || link2.SaleID != sale.ID {
		t.Errorf("links point at %s/%s, want %s", link1.SaleID, link2.SaleID, sale.ID)
	}
}

func TestReconcileAllSkipsLinkedInstallments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "777", 600, day(2026, time.May, 15),
		&models.Installment{SaleID: "sale-1", Number: 1, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.June, 15)},
		&models.Installment{SaleID: "sale-1", Number: 2, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.July, 15)},
	)
	pre := addTx(t, s, "tx-pre", 300, day(2026, time.June, 15), "Pgto venda 777 Maria Silva parcela 1/2")
	one := 1
	if err := s.InsertLink(ctx, models.NewLink(sale.ID, pre.ID, &one, 100, models.FactorBreakdown{}, true)); err != nil {
		t.Fatalf("InsertLink() error = %v", err)
	}
	addTx(t, s, "tx-2", 300, day(2026, time.July, 15), "Pgto venda 777 Maria Silva parcela 2/2")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	// The settled installment is reported, not silently passed over; only
	// the open one is actually scored.
	if result.TotalProcessed != 2 || result.Matched != 1 || result.Unmatched != 1 {
		t.Errorf("processed/matched/unmatched = %d/%d/%d, want 2/1/1",
			result.TotalProcessed, result.Matched, result.Unmatched)
	}
	if result.Details.AlreadyLinkedSkipped != 1 {
		t.Errorf("AlreadyLinkedSkipped = %d, want 1", result.Details.AlreadyLinkedSkipped)
	}
}

func TestReconcileAllDuplicateSuppression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	linkedSale := addSale(t, s, "sale-a", "1001", 500, day(2026, time.June, 10))
	linkedTx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")
	if err := s.InsertLink(ctx, models.NewLink(linkedSale.ID, linkedTx.ID, nil, 100, models.FactorBreakdown{}, true)); err != nil {
		t.Fatalf("InsertLink() error = %v", err)
	}

	// A same-day, same-wallet, near-identical posting must not settle
	// another sale.
	addSale(t, s, "sale-b", "1002", 500, day(2026, time.June, 10))
	addTx(t, s, "tx-2", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 0 || result.Unmatched != 1 {
		t.Errorf("matched/unmatched = %d/%d, want 0/1", result.Matched, result.Unmatched)
	}
	if _, err := s.GetLinkForTransaction(ctx, "tx-2"); !errors.IsNotFound(err) {
		t.Errorf("duplicate transaction was linked: err = %v", err)
	}
}

func TestReconcileAllTransactionLinkedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two identical sales compete for one transaction; exactly one wins.
	addSale(t, s, "sale-a", "1001", 500, day(2026, time.June, 10))
	addSale(t, s, "sale-b", "1002", 500, day(2026, time.June, 10))
	addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 1 || result.Unmatched != 1 {
		t.Errorf("matched/unmatched = %d/%d, want 1/1", result.Matched, result.Unmatched)
	}

	links, err := s.ListLinkedTransactions(ctx)
	if err != nil {
		t.Fatalf("ListLinkedTransactions() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("transaction linked %d times, want 1", len(links))
	}
	if links[0].Link.SaleID != "sale-a" {
		t.Errorf("winner = %s, want sale-a", links[0].Link.SaleID)
	}
}

func TestReconcileAllWalletFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	other := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")
	other.WalletID = "wallet-2"
	if err := s.SaveTransaction(ctx, other); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	engine := newTestEngine(t, s, Options{WalletID: "wallet-1"})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if result.Matched != 0 {
		t.Errorf("matched = %d, want 0 with the wallet filter", result.Matched)
	}
}

func TestReconcileTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	tx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("ReconcileTransaction() error = %v", err)
	}

	if result.Matched != 1 || result.Details.TransactionsProcessed != 1 {
		t.Errorf("result = %+v", result)
	}
	link, err := s.GetLinkForTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetLinkForTransaction() error = %v", err)
	}
	if link.SaleID != sale.ID {
		t.Errorf("link sale = %s, want %s", link.SaleID, sale.ID)
	}

	// A second pass over the same transaction reports it as linked.
	if _, err := engine.ReconcileTransaction(ctx, tx.ID); !errors.IsAlreadyLinked(err) {
		t.Errorf("second ReconcileTransaction() = %v, want already-linked", err)
	}
}

func TestReconcileSale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	// A second sale must stay untouched by the single-sale entry point.
	addSale(t, s, "sale-2", "1002", 800, day(2026, time.June, 12))
	tx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("ReconcileSale() error = %v", err)
	}

	if result.TotalProcessed != 1 || result.Matched != 1 {
		t.Errorf("processed/matched = %d/%d, want 1/1", result.TotalProcessed, result.Matched)
	}
	if _, err := s.GetLinkForTransaction(ctx, tx.ID); err != nil {
		t.Errorf("GetLinkForTransaction() error = %v", err)
	}
	if _, err := s.GetLinkForTarget(ctx, "sale-2", nil); !errors.IsNotFound(err) {
		t.Errorf("sale-2 should remain unlinked, err = %v", err)
	}

	if _, err := engine.ReconcileSale(ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("ReconcileSale(missing) = %v, want not-found", err)
	}
}

func TestReconcileSaleAlreadyLinked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	if _, err := engine.ReconcileSale(ctx, sale.ID); err != nil {
		t.Fatalf("ReconcileSale() error = %v", err)
	}
	first, err := s.GetLinkForTarget(ctx, sale.ID, nil)
	if err != nil {
		t.Fatalf("GetLinkForTarget() error = %v", err)
	}

	// The second attempt reports the settled target instead of silently
	// skipping it, and leaves the existing link untouched.
	result, err := engine.ReconcileSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("second ReconcileSale() error = %v", err)
	}
	if result.TotalProcessed != 1 || result.Matched != 0 || result.Unmatched != 1 {
		t.Errorf("processed/matched/unmatched = %d/%d/%d, want 1/0/1",
			result.TotalProcessed, result.Matched, result.Unmatched)
	}
	if result.Details.AlreadyLinkedSkipped != 1 {
		t.Errorf("AlreadyLinkedSkipped = %d, want 1", result.Details.AlreadyLinkedSkipped)
	}
	if len(result.UnmatchedTargets) != 1 || result.UnmatchedTargets[0].Reason != ReasonAlreadyLinked {
		t.Errorf("UnmatchedTargets = %+v", result.UnmatchedTargets)
	}

	again, err := s.GetLinkForTarget(ctx, sale.ID, nil)
	if err != nil {
		t.Fatalf("GetLinkForTarget() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("link replaced: %s -> %s", first.ID, again.ID)
	}
}

func TestReconcileTransactionDuplicateSuppressed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	linkedSale := addSale(t, s, "sale-a", "1001", 500, day(2026, time.June, 10))
	linkedTx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")
	if err := s.InsertLink(ctx, models.NewLink(linkedSale.ID, linkedTx.ID, nil, 100, models.FactorBreakdown{}, true)); err != nil {
		t.Fatalf("InsertLink() error = %v", err)
	}

	addSale(t, s, "sale-b", "1002", 500, day(2026, time.June, 10))
	dup := addTx(t, s, "tx-2", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileTransaction(ctx, dup.ID)
	if err != nil {
		t.Fatalf("ReconcileTransaction() error = %v", err)
	}

	if result.TotalProcessed != 1 || result.Matched != 0 || result.Unmatched != 1 {
		t.Errorf("processed/matched/unmatched = %d/%d/%d, want 1/0/1",
			result.TotalProcessed, result.Matched, result.Unmatched)
	}
	if result.Details.DuplicatesSuppressed != 1 {
		t.Errorf("DuplicatesSuppressed = %d, want 1", result.Details.DuplicatesSuppressed)
	}
	if len(result.UnmatchedTargets) != 1 ||
		result.UnmatchedTargets[0].TransactionID != dup.ID ||
		result.UnmatchedTargets[0].Reason != ReasonDuplicate {
		t.Errorf("UnmatchedTargets = %+v", result.UnmatchedTargets)
	}
	if _, err := s.GetLinkForTransaction(ctx, dup.ID); !errors.IsNotFound(err) {
		t.Errorf("duplicate transaction was linked: err = %v", err)
	}
}

func TestReconcileTransactionNotFound(t *testing.T) {
	s := newTestStore(t)
	engine := newTestEngine(t, s, Options{})

	if _, err := engine.ReconcileTransaction(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("ReconcileTransaction(missing) = %v, want not-found", err)
	}
}

func TestReconcileTransactionNoTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addSale(t, s, "sale-1", "1001", 5000, day(2026, time.June, 10))
	tx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX avulso")

	engine := newTestEngine(t, s, Options{})
	result, err := engine.ReconcileTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("ReconcileTransaction() error = %v", err)
	}
	if result.Matched != 0 || result.Details.NoMatchFound != 1 {
		t.Errorf("result = %+v", result)
	}
}

func seedManualLinks(t *testing.T, s *store.SQLiteStore, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		id := strconv.Itoa(9000 + i)
		sale := addSale(t, s, "seed-sale-"+id, id, 100, day(2026, time.April, 1))
		tx := addTx(t, s, "seed-tx-"+id, 100, day(2026, time.April, 2), "PIX ref "+id)
		if err := s.InsertLink(ctx, models.NewLink(sale.ID, tx.ID, nil, 100, models.FactorBreakdown{}, true)); err != nil {
			t.Fatalf("InsertLink(seed %d) error = %v", i, err)
		}
	}
}

func TestLearningGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	// Below the gate the learning flag stays off even when requested.
	engine := newTestEngine(t, s, Options{UseLearning: true})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if result.LearningApplied {
		t.Error("learning applied below the confirmed-link gate")
	}
	if result.Matched != 1 {
		t.Errorf("matched = %d, want 1 on the deterministic path", result.Matched)
	}
}

func TestLearningAboveGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedManualLinks(t, s, 30)
	addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	tx := addTx(t, s, "tx-1", 500, day(2026, time.June, 10), "PIX Venda #1001 Maria Silva")

	engine := newTestEngine(t, s, Options{UseLearning: true})
	result, err := engine.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	if !result.LearningApplied {
		t.Fatal("learning not applied above the confirmed-link gate")
	}
	if result.Matched != 1 {
		t.Errorf("matched = %d, want 1 (unmatched: %+v)", result.Matched, result.UnmatchedTargets)
	}
	if _, err := s.GetLinkForTransaction(ctx, tx.ID); err != nil {
		t.Errorf("GetLinkForTransaction() error = %v", err)
	}
}

func TestManualLinkLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))
	tx := addTx(t, s, "tx-1", 480, day(2026, time.June, 20), "transferencia qualquer")

	engine := newTestEngine(t, s, Options{})
	writer := engine.Writer()

	link, err := writer.CreateManualLink(ctx, sale.ID, tx.ID, nil)
	if err != nil {
		t.Fatalf("CreateManualLink() error = %v", err)
	}
	if !link.ManuallyConfirmed || link.Confidence != 100 {
		t.Errorf("manual link = %+v", link)
	}

	flagged, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !flagged.Reconciled || flagged.ReconciledSaleCode != sale.Code {
		t.Errorf("transaction not flagged after manual link")
	}

	// Second link on either side is rejected.
	sale2 := addSale(t, s, "sale-2", "1002", 500, day(2026, time.June, 11))
	if _, err := writer.CreateManualLink(ctx, sale2.ID, tx.ID, nil); !errors.IsAlreadyLinked(err) {
		t.Errorf("relink transaction = %v, want already-linked", err)
	}

	if err := writer.RemoveLink(ctx, sale.ID, tx.ID); err != nil {
		t.Fatalf("RemoveLink() error = %v", err)
	}
	reverted, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if reverted.Reconciled || reverted.ReconciledSaleCode != "" {
		t.Errorf("transaction still flagged after RemoveLink")
	}
	if err := writer.RemoveLink(ctx, sale.ID, tx.ID); !errors.IsNotFound(err) {
		t.Errorf("second RemoveLink() = %v, want not-found", err)
	}
}

func TestManualLinkValidations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := addSale(t, s, "sale-1", "1001", 600, day(2026, time.May, 15),
		&models.Installment{SaleID: "sale-1", Number: 1, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.June, 15)},
		&models.Installment{SaleID: "sale-1", Number: 2, Amount: decimal.NewFromInt(300), DueDate: day(2026, time.July, 15)},
	)
	tx := addTx(t, s, "tx-1", 300, day(2026, time.June, 15), "pgto")

	engine := newTestEngine(t, s, Options{})
	writer := engine.Writer()

	// Installment sales require the installment to be named.
	if _, err := writer.CreateManualLink(ctx, sale.ID, tx.ID, nil); err == nil {
		t.Error("CreateManualLink() accepted an installment sale without an installment")
	}

	missing := 9
	if _, err := writer.CreateManualLink(ctx, sale.ID, tx.ID, &missing); !errors.IsNotFound(err) {
		t.Errorf("CreateManualLink(bad installment) = %v, want not-found", err)
	}
	if _, err := writer.CreateManualLink(ctx, "nope", tx.ID, nil); !errors.IsNotFound(err) {
		t.Errorf("CreateManualLink(bad sale) = %v, want not-found", err)
	}
	if _, err := writer.CreateManualLink(ctx, sale.ID, "nope", &[]int{1}[0]); !errors.IsNotFound(err) {
		t.Errorf("CreateManualLink(bad transaction) = %v, want not-found", err)
	}

	one := 1
	if _, err := writer.CreateManualLink(ctx, sale.ID, tx.ID, &one); err != nil {
		t.Errorf("CreateManualLink(installment 1) error = %v", err)
	}
}

func TestReconcileAllContextCancelled(t *testing.T) {
	s := newTestStore(t)

	addSale(t, s, "sale-1", "1001", 500, day(2026, time.June, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(t, s, Options{})
	if _, err := engine.ReconcileAll(ctx); err == nil {
		t.Error("ReconcileAll() with cancelled context returned nil error")
	}
}

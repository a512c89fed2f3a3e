// Package store persists sales, transactions and reconciliation links and
// serves the queries the reconciliation engine is built on. The SQLite
// implementation is the canonical one; the link uniqueness invariants are
// enforced by its schema, not by callers.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"receivables-reconciler/internal/models"
)

// Page is an offset/limit window over an ordered result set. Callers walk
// result sets by advancing Offset; ordering is stable per query.
type Page struct {
	Offset int
	Limit  int
}

// Next returns the window following p.
func (p Page) Next() Page {
	return Page{Offset: p.Offset + p.Limit, Limit: p.Limit}
}

// CandidateQuery selects unreconciled income transactions inside an amount
// and date window, the raw material for match scoring.
type CandidateQuery struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	From      time.Time
	To        time.Time

	// WalletID narrows the search to one wallet when set.
	WalletID string

	Page Page
}

// ConfirmedLink is a link joined with both of its sides, as loaded for
// history statistics and the learning pool.
type ConfirmedLink struct {
	Link        *models.ReconciliationLink
	Sale        *models.Sale
	Transaction *models.Transaction
}

// Store is the persistence surface of the engine.
//
// InsertLink is atomic with respect to the two uniqueness invariants: a
// transaction in at most one link, a (sale, installment) target in at most
// one link. A violation of either returns an AlreadyLinked error; that
// constraint check is the canonical signal, racing writers lose cleanly.
type Store interface {
	// Sales.
	SaveSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, id string) (*models.Sale, error)
	GetSaleByCode(ctx context.Context, code string) (*models.Sale, error)
	ListUnresolvedSales(ctx context.Context, page Page) ([]*models.Sale, error)

	// Transactions.
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	FindCandidateTransactions(ctx context.Context, query CandidateQuery) ([]*models.Transaction, error)
	MarkTransactionReconciled(ctx context.Context, txID, saleCode string) error
	ClearTransactionReconciled(ctx context.Context, txID string) error

	// Links.
	InsertLink(ctx context.Context, link *models.ReconciliationLink) error
	DeleteLink(ctx context.Context, saleID, transactionID string) error
	GetLinkForTransaction(ctx context.Context, transactionID string) (*models.ReconciliationLink, error)
	GetLinkForTarget(ctx context.Context, saleID string, installmentNumber *int) (*models.ReconciliationLink, error)
	ListLinkedTransactions(ctx context.Context) ([]*models.LinkedTransaction, error)
	ListConfirmedLinks(ctx context.Context, since time.Time, limit int) ([]*ConfirmedLink, error)
	CountManuallyConfirmedLinks(ctx context.Context) (int, error)

	Close() error
}

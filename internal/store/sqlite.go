package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"receivables-reconciler/internal/models"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

// Amounts are stored as exact decimal strings; range predicates cast to REAL,
// which is safe because every band is re-verified in decimal by the scorer.
const schema = `
CREATE TABLE IF NOT EXISTS sales (
	id            TEXT PRIMARY KEY,
	code          TEXT NOT NULL UNIQUE,
	customer_name TEXT NOT NULL DEFAULT '',
	channel       TEXT NOT NULL DEFAULT '',
	sale_date     TIMESTAMP NOT NULL,
	total_amount  TEXT NOT NULL,
	net_amount    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS installments (
	sale_id  TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	amount   TEXT NOT NULL,
	due_date TIMESTAMP NOT NULL,
	status   TEXT NOT NULL DEFAULT 'PENDING',
	PRIMARY KEY (sale_id, seq)
);

CREATE TABLE IF NOT EXISTS transactions (
	id                   TEXT PRIMARY KEY,
	wallet_id            TEXT NOT NULL DEFAULT '',
	tx_date              TIMESTAMP NOT NULL,
	amount               TEXT NOT NULL,
	tx_type              TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	name                 TEXT NOT NULL DEFAULT '',
	payment_method       TEXT NOT NULL DEFAULT '',
	provenance           TEXT,
	reconciled           INTEGER NOT NULL DEFAULT 0,
	reconciled_sale_code TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_candidates
	ON transactions(tx_type, reconciled, tx_date);

CREATE TABLE IF NOT EXISTS links (
	id                 TEXT PRIMARY KEY,
	sale_id            TEXT NOT NULL REFERENCES sales(id),
	transaction_id     TEXT NOT NULL REFERENCES transactions(id),
	installment_seq    INTEGER,
	confidence         REAL NOT NULL,
	factors            TEXT NOT NULL DEFAULT '{}',
	manually_confirmed INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_links_transaction
	ON links(transaction_id);

-- Installment seq starts at 1, so 0 stands in for whole-sale links and the
-- index covers both link shapes.
CREATE UNIQUE INDEX IF NOT EXISTS idx_links_target
	ON links(sale_id, ifnull(installment_seq, 0));
`

// SQLiteStore implements Store on a SQLite database file (or :memory:).
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.PersistenceFailure("open database", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.PersistenceFailure("enable foreign keys", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.PersistenceFailure("apply schema", err)
	}

	return &SQLiteStore{db: db, log: log.WithComponent("store")}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSale upserts the sale and replaces its installment rows.
func (s *SQLiteStore) SaveSale(ctx context.Context, sale *models.Sale) error {
	if err := sale.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "sale", sale.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceFailure("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sales
			(id, code, customer_name, channel, sale_date, total_amount, net_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.Code, sale.CustomerName, sale.Channel,
		sale.Date.UTC(), sale.TotalAmount.String(), sale.NetAmount.String())
	if err != nil {
		return errors.PersistenceFailure("save sale", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM installments WHERE sale_id = ?`, sale.ID); err != nil {
		return errors.PersistenceFailure("replace installments", err)
	}
	for _, inst := range sale.Installments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installments (sale_id, seq, amount, due_date, status)
			VALUES (?, ?, ?, ?, ?)`,
			sale.ID, inst.Number, inst.Amount.String(), inst.DueDate.UTC(), string(inst.Status))
		if err != nil {
			return errors.PersistenceFailure("save installment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.PersistenceFailure("commit sale", err)
	}
	return nil
}

// GetSale loads a sale and its installments by id.
func (s *SQLiteStore) GetSale(ctx context.Context, id string) (*models.Sale, error) {
	return s.getSaleWhere(ctx, "id = ?", id)
}

// GetSaleByCode loads a sale and its installments by business code.
func (s *SQLiteStore) GetSaleByCode(ctx context.Context, code string) (*models.Sale, error) {
	return s.getSaleWhere(ctx, "code = ?", code)
}

func (s *SQLiteStore) getSaleWhere(ctx context.Context, where string, arg interface{}) (*models.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, customer_name, channel, sale_date, total_amount, net_amount
		FROM sales WHERE `+where, arg)

	sale, err := scanSale(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sale", toString(arg))
	}
	if err != nil {
		return nil, errors.PersistenceFailure("load sale", err)
	}

	if err := s.loadInstallments(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *SQLiteStore) loadInstallments(ctx context.Context, sale *models.Sale) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, seq, amount, due_date, status
		FROM installments WHERE sale_id = ? ORDER BY seq`, sale.ID)
	if err != nil {
		return errors.PersistenceFailure("load installments", err)
	}
	defer rows.Close()

	for rows.Next() {
		inst := &models.Installment{}
		var amount, status string
		if err := rows.Scan(&inst.SaleID, &inst.Number, &amount, &inst.DueDate, &status); err != nil {
			return errors.PersistenceFailure("scan installment", err)
		}
		value, err := models.ParseDecimalFromString(amount)
		if err != nil {
			return errors.PersistenceFailure("decode installment amount", err)
		}
		inst.Amount = value
		inst.Status = models.InstallmentStatus(status)
		sale.Installments = append(sale.Installments, inst)
	}
	return rows.Err()
}

// ListUnresolvedSales pages through sales that still need reconciliation
// work: installment sales with at least one unlinked installment, plain
// sales with no link at all. Ordered by sale date then id for stable paging.
func (s *SQLiteStore) ListUnresolvedSales(ctx context.Context, page Page) ([]*models.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.code, s.customer_name, s.channel, s.sale_date, s.total_amount, s.net_amount
		FROM sales s
		WHERE
			(EXISTS (SELECT 1 FROM installments i WHERE i.sale_id = s.id)
				AND EXISTS (
					SELECT 1 FROM installments i
					WHERE i.sale_id = s.id
					AND NOT EXISTS (
						SELECT 1 FROM links l
						WHERE l.sale_id = s.id AND l.installment_seq = i.seq)))
			OR
			(NOT EXISTS (SELECT 1 FROM installments i WHERE i.sale_id = s.id)
				AND NOT EXISTS (SELECT 1 FROM links l WHERE l.sale_id = s.id))
		ORDER BY s.sale_date, s.id
		LIMIT ? OFFSET ?`, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.PersistenceFailure("list unresolved sales", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, errors.PersistenceFailure("scan sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceFailure("list unresolved sales", err)
	}

	for _, sale := range sales {
		if err := s.loadInstallments(ctx, sale); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

// SaveTransaction upserts the transaction.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "transaction", tx.ID, err)
	}

	provenance, err := tx.Provenance.Encode()
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "provenance", tx.ID, err)
	}
	var provenanceArg interface{}
	if provenance != nil {
		provenanceArg = string(provenance)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, wallet_id, tx_date, amount, tx_type, description, name,
			 payment_method, provenance, reconciled, reconciled_sale_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.WalletID, tx.Date.UTC(), tx.Amount.String(), string(tx.Type),
		tx.Description, tx.Name, tx.PaymentMethod, provenanceArg,
		tx.Reconciled, tx.ReconciledSaleCode)
	if err != nil {
		return errors.PersistenceFailure("save transaction", err)
	}
	return nil
}

// GetTransaction loads a transaction by id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_id, tx_date, amount, tx_type, description, name,
		       payment_method, provenance, reconciled, reconciled_sale_code
		FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transaction", id)
	}
	if err != nil {
		return nil, errors.PersistenceFailure("load transaction", err)
	}
	return tx, nil
}

// FindCandidateTransactions returns unreconciled income transactions inside
// the query's amount and date window, ordered by date then id.
func (s *SQLiteStore) FindCandidateTransactions(ctx context.Context, query CandidateQuery) ([]*models.Transaction, error) {
	minAmount, _ := query.MinAmount.Float64()
	maxAmount, _ := query.MaxAmount.Float64()

	sqlQuery := `
		SELECT id, wallet_id, tx_date, amount, tx_type, description, name,
		       payment_method, provenance, reconciled, reconciled_sale_code
		FROM transactions
		WHERE tx_type = ?
		  AND reconciled = 0
		  AND NOT EXISTS (SELECT 1 FROM links l WHERE l.transaction_id = transactions.id)
		  AND abs(CAST(amount AS REAL)) BETWEEN ? AND ?
		  AND tx_date BETWEEN ? AND ?`
	args := []interface{}{
		string(models.TransactionTypeIncome),
		minAmount, maxAmount,
		query.From.UTC(), query.To.UTC(),
	}

	if query.WalletID != "" {
		sqlQuery += ` AND wallet_id = ?`
		args = append(args, query.WalletID)
	}
	sqlQuery += ` ORDER BY tx_date, id`
	if query.Page.Limit > 0 {
		sqlQuery += ` LIMIT ? OFFSET ?`
		args = append(args, query.Page.Limit, query.Page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.PersistenceFailure("find candidate transactions", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.PersistenceFailure("scan transaction", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceFailure("find candidate transactions", err)
	}
	return txs, nil
}

// MarkTransactionReconciled flags the transaction and records the sale code
// it settled.
func (s *SQLiteStore) MarkTransactionReconciled(ctx context.Context, txID, saleCode string) error {
	return s.setReconciled(ctx, txID, true, saleCode)
}

// ClearTransactionReconciled reverts the transaction to unreconciled.
func (s *SQLiteStore) ClearTransactionReconciled(ctx context.Context, txID string) error {
	return s.setReconciled(ctx, txID, false, "")
}

func (s *SQLiteStore) setReconciled(ctx context.Context, txID string, reconciled bool, saleCode string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET reconciled = ?, reconciled_sale_code = ? WHERE id = ?`,
		reconciled, saleCode, txID)
	if err != nil {
		return errors.PersistenceFailure("update transaction state", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.PersistenceFailure("update transaction state", err)
	}
	if affected == 0 {
		return errors.NotFound("transaction", txID)
	}
	return nil
}

// InsertLink writes the link. The two unique indexes make the write atomic
// with respect to both invariants; a violation of either comes back as
// AlreadyLinked.
func (s *SQLiteStore) InsertLink(ctx context.Context, link *models.ReconciliationLink) error {
	if err := link.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "link", link.TargetKey(), err)
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	factors, err := link.Factors.Encode()
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "link factors", link.TargetKey(), err)
	}

	var installmentSeq interface{}
	if link.InstallmentNumber != nil {
		installmentSeq = *link.InstallmentNumber
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO links
			(id, sale_id, transaction_id, installment_seq, confidence,
			 factors, manually_confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID.String(), link.SaleID, link.TransactionID, installmentSeq,
		link.Confidence, string(factors), link.ManuallyConfirmed, link.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "transaction") {
				return errors.AlreadyLinked("transaction", link.TransactionID)
			}
			return errors.AlreadyLinked("sale", link.TargetKey())
		}
		return errors.PersistenceFailure("insert link", err)
	}

	s.log.WithFields(logger.Fields{
		"sale_id":        link.SaleID,
		"transaction_id": link.TransactionID,
		"confidence":     link.Confidence,
		"manual":         link.ManuallyConfirmed,
	}).Debug("Link persisted")
	return nil
}

// DeleteLink removes the link between a sale and a transaction.
func (s *SQLiteStore) DeleteLink(ctx context.Context, saleID, transactionID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM links WHERE sale_id = ? AND transaction_id = ?`,
		saleID, transactionID)
	if err != nil {
		return errors.PersistenceFailure("delete link", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.PersistenceFailure("delete link", err)
	}
	if affected == 0 {
		return errors.NotFound("link", saleID+"/"+transactionID)
	}
	return nil
}

// GetLinkForTransaction returns the link holding the transaction, if any.
func (s *SQLiteStore) GetLinkForTransaction(ctx context.Context, transactionID string) (*models.ReconciliationLink, error) {
	return s.getLinkWhere(ctx, "transaction_id = ?", transactionID)
}

// GetLinkForTarget returns the link holding the (sale, installment) target,
// if any.
func (s *SQLiteStore) GetLinkForTarget(ctx context.Context, saleID string, installmentNumber *int) (*models.ReconciliationLink, error) {
	seq := 0
	if installmentNumber != nil {
		seq = *installmentNumber
	}
	return s.getLinkWhere(ctx, "sale_id = ? AND ifnull(installment_seq, 0) = ?", saleID, seq)
}

func (s *SQLiteStore) getLinkWhere(ctx context.Context, where string, args ...interface{}) (*models.ReconciliationLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, transaction_id, installment_seq, confidence,
		       factors, manually_confirmed, created_at
		FROM links WHERE `+where, args...)

	link, err := scanLink(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("link", "")
	}
	if err != nil {
		return nil, errors.PersistenceFailure("load link", err)
	}
	return link, nil
}

// ListLinkedTransactions returns every link joined with its transaction,
// the working set of the duplicate filter.
func (s *SQLiteStore) ListLinkedTransactions(ctx context.Context) ([]*models.LinkedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.sale_id, l.transaction_id, l.installment_seq, l.confidence,
		       l.factors, l.manually_confirmed, l.created_at,
		       t.id, t.wallet_id, t.tx_date, t.amount, t.tx_type, t.description,
		       t.name, t.payment_method, t.provenance, t.reconciled, t.reconciled_sale_code
		FROM links l
		JOIN transactions t ON t.id = l.transaction_id
		ORDER BY l.created_at, l.id`)
	if err != nil {
		return nil, errors.PersistenceFailure("list linked transactions", err)
	}
	defer rows.Close()

	var linked []*models.LinkedTransaction
	for rows.Next() {
		pair, err := scanLinkedTransaction(rows)
		if err != nil {
			return nil, errors.PersistenceFailure("scan linked transaction", err)
		}
		linked = append(linked, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceFailure("list linked transactions", err)
	}
	return linked, nil
}

// ListConfirmedLinks returns links created at or after since, newest first,
// joined with both sides. A non-positive limit means no cap.
func (s *SQLiteStore) ListConfirmedLinks(ctx context.Context, since time.Time, limit int) ([]*ConfirmedLink, error) {
	sqlQuery := `
		SELECT l.id, l.sale_id, l.transaction_id, l.installment_seq, l.confidence,
		       l.factors, l.manually_confirmed, l.created_at,
		       t.id, t.wallet_id, t.tx_date, t.amount, t.tx_type, t.description,
		       t.name, t.payment_method, t.provenance, t.reconciled, t.reconciled_sale_code
		FROM links l
		JOIN transactions t ON t.id = l.transaction_id
		WHERE l.created_at >= ?
		ORDER BY l.created_at DESC, l.id`
	args := []interface{}{since.UTC()}
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.PersistenceFailure("list confirmed links", err)
	}
	defer rows.Close()

	var confirmed []*ConfirmedLink
	for rows.Next() {
		pair, err := scanLinkedTransaction(rows)
		if err != nil {
			return nil, errors.PersistenceFailure("scan confirmed link", err)
		}
		confirmed = append(confirmed, &ConfirmedLink{
			Link:        pair.Link,
			Transaction: pair.Transaction,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceFailure("list confirmed links", err)
	}

	for _, c := range confirmed {
		sale, err := s.GetSale(ctx, c.Link.SaleID)
		if err != nil {
			return nil, err
		}
		c.Sale = sale
	}
	return confirmed, nil
}

// CountManuallyConfirmedLinks counts links created or confirmed by hand,
// the learning-gate input.
func (s *SQLiteStore) CountManuallyConfirmedLinks(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM links WHERE manually_confirmed = 1`).Scan(&count)
	if err != nil {
		return 0, errors.PersistenceFailure("count manual links", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSale(row rowScanner) (*models.Sale, error) {
	sale := &models.Sale{}
	var total, net string
	if err := row.Scan(&sale.ID, &sale.Code, &sale.CustomerName, &sale.Channel,
		&sale.Date, &total, &net); err != nil {
		return nil, err
	}

	var err error
	if sale.TotalAmount, err = models.ParseDecimalFromString(total); err != nil {
		return nil, err
	}
	if sale.NetAmount, err = models.ParseDecimalFromString(net); err != nil {
		return nil, err
	}
	return sale, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var amount, txType string
	var provenance sql.NullString

	if err := row.Scan(&tx.ID, &tx.WalletID, &tx.Date, &amount, &txType,
		&tx.Description, &tx.Name, &tx.PaymentMethod, &provenance,
		&tx.Reconciled, &tx.ReconciledSaleCode); err != nil {
		return nil, err
	}

	return decodeTransaction(tx, amount, txType, provenance)
}

func decodeTransaction(tx *models.Transaction, amount, txType string, provenance sql.NullString) (*models.Transaction, error) {
	var err error
	if tx.Amount, err = models.ParseDecimalFromString(amount); err != nil {
		return nil, err
	}
	tx.Type = models.TransactionType(txType)
	if provenance.Valid {
		if tx.Provenance, err = models.ParseProvenance([]byte(provenance.String)); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func scanLink(row rowScanner) (*models.ReconciliationLink, error) {
	link := &models.ReconciliationLink{}
	var id, factors string
	var installmentSeq sql.NullInt64

	if err := row.Scan(&id, &link.SaleID, &link.TransactionID, &installmentSeq,
		&link.Confidence, &factors, &link.ManuallyConfirmed, &link.CreatedAt); err != nil {
		return nil, err
	}

	return decodeLink(link, id, factors, installmentSeq)
}

func decodeLink(link *models.ReconciliationLink, id, factors string, installmentSeq sql.NullInt64) (*models.ReconciliationLink, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	link.ID = parsed

	if installmentSeq.Valid {
		seq := int(installmentSeq.Int64)
		link.InstallmentNumber = &seq
	}

	if link.Factors, err = models.ParseFactorBreakdown([]byte(factors)); err != nil {
		return nil, err
	}
	return link, nil
}

func scanLinkedTransaction(row rowScanner) (*models.LinkedTransaction, error) {
	link := &models.ReconciliationLink{}
	tx := &models.Transaction{}
	var linkID, factors string
	var installmentSeq sql.NullInt64
	var amount, txType string
	var provenance sql.NullString

	if err := row.Scan(
		&linkID, &link.SaleID, &link.TransactionID, &installmentSeq,
		&link.Confidence, &factors, &link.ManuallyConfirmed, &link.CreatedAt,
		&tx.ID, &tx.WalletID, &tx.Date, &amount, &txType, &tx.Description,
		&tx.Name, &tx.PaymentMethod, &provenance, &tx.Reconciled,
		&tx.ReconciledSaleCode); err != nil {
		return nil, err
	}

	if _, err := decodeLink(link, linkID, factors, installmentSeq); err != nil {
		return nil, err
	}
	if _, err := decodeTransaction(tx, amount, txType, provenance); err != nil {
		return nil, err
	}
	return &models.LinkedTransaction{Link: link, Transaction: tx}, nil
}

func isUniqueViolation(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	if !ok {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

package parsers

import (
	"context"
	"io"

	"receivables-reconciler/internal/models"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

// TransactionParser reads the ledger export, one transaction per row. Rows
// carrying an institution column get bank provenance attached.
type TransactionParser struct {
	*baseParser
	config *TransactionParserConfig
}

// NewTransactionParser builds a parser for the given column mapping.
func NewTransactionParser(config *TransactionParserConfig, parse *ParseConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transaction_parser", config, err)
	}

	if parse == nil {
		parse = DefaultParseConfig()
	}
	parse.HasHeader = config.HasHeader
	parse.Delimiter = config.Delimiter

	return &TransactionParser{
		baseParser: newBaseParser(parse, "transaction_parser"),
		config:     config,
	}, nil
}

// ParseTransactions reads the file and returns the transactions in file
// order.
func (tp *TransactionParser) ParseTransactions(ctx context.Context, path string) ([]*models.Transaction, *ParseStats, error) {
	tp.log.WithField("path", path).Info("Importing transactions")

	file, reader, err := tp.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	state := newParseState(ctx)
	stats := &ParseStats{}

	required := []string{
		tp.config.ColumnName("id"),
		tp.config.ColumnName("date"),
		tp.config.ColumnName("amount"),
		tp.config.ColumnName("type"),
	}
	if err := tp.readHeaders(reader, state, path, required); err != nil {
		return nil, stats, err
	}

	var transactions []*models.Transaction
	seen := make(map[string]bool)

	for {
		row, err := tp.readRow(reader, state)
		if err != nil {
			if err == io.EOF {
				break
			}
			if state.cancelled() {
				return transactions, stats, err
			}
			stats.addError(state.line, "", "", "unreadable csv row", err)
			if capErr := tp.checkCaps(stats, state, path); capErr != nil {
				return transactions, stats, capErr
			}
			continue
		}
		stats.RowsParsed++
		if err := tp.checkCaps(stats, state, path); err != nil {
			return transactions, stats, err
		}

		tx, ok := tp.parseRow(row, state, stats)
		if !ok {
			continue
		}
		if seen[tx.ID] {
			stats.addError(state.line, tp.config.ColumnName("id"), tx.ID,
				"duplicate transaction id", nil)
			continue
		}
		seen[tx.ID] = true
		transactions = append(transactions, tx)
		stats.RecordsValid++
	}
	stats.TotalLines = state.line

	tp.log.WithFields(logger.Fields{
		"path":         path,
		"transactions": len(transactions),
		"rows":         stats.RowsParsed,
		"errors":       len(stats.Errors),
	}).Info("Transaction import complete")
	if stats.HasErrors() {
		tp.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some transaction rows were rejected")
	}
	return transactions, stats, nil
}

func (tp *TransactionParser) parseRow(row []string, state *parseState, stats *ParseStats) (*models.Transaction, bool) {
	idCol := tp.config.ColumnName("id")
	id := fieldValue(row, state, idCol)
	if id == "" {
		stats.addError(state.line, idCol, "", "transaction id is empty", nil)
		return nil, false
	}

	dateCol := tp.config.ColumnName("date")
	date, err := models.ParseTimeWithFormats(fieldValue(row, state, dateCol))
	if err != nil {
		stats.addError(state.line, dateCol, fieldValue(row, state, dateCol),
			"unparseable transaction date", err)
		return nil, false
	}

	amountCol := tp.config.ColumnName("amount")
	amount, err := models.ParseDecimalFromString(fieldValue(row, state, amountCol))
	if err != nil {
		stats.addError(state.line, amountCol, fieldValue(row, state, amountCol),
			"unparseable amount", err)
		return nil, false
	}

	typeCol := tp.config.ColumnName("type")
	txType, err := models.ParseTransactionType(fieldValue(row, state, typeCol))
	if err != nil {
		stats.addError(state.line, typeCol, fieldValue(row, state, typeCol),
			"unknown transaction type", err)
		return nil, false
	}

	tx := &models.Transaction{
		ID:            id,
		WalletID:      fieldValue(row, state, tp.config.ColumnName("wallet_id")),
		Date:          date,
		Amount:        amount,
		Type:          txType,
		Description:   fieldValue(row, state, tp.config.ColumnName("description")),
		Name:          fieldValue(row, state, tp.config.ColumnName("name")),
		PaymentMethod: fieldValue(row, state, tp.config.ColumnName("payment_method")),
	}

	if institution := fieldValue(row, state, tp.config.ColumnName("institution")); institution != "" {
		tx.Provenance = models.Provenance{
			Kind: models.ProvenanceBank,
			Bank: &models.BankProvenance{
				Institution: institution,
				AccountID:   fieldValue(row, state, tp.config.ColumnName("account_id")),
			},
		}
	}

	if err := tx.Validate(); err != nil {
		stats.addError(state.line, idCol, id, "transaction failed validation", err)
		return nil, false
	}
	return tx, true
}

package parsers

import (
	"context"
	"io"
	"strconv"

	"receivables-reconciler/internal/models"
	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

// SaleParser reads the billing export. The file mixes two row shapes under
// one header: sale rows, and installment rows that repeat the sale id and
// fill the installment columns. Installment rows must follow the sale they
// belong to.
type SaleParser struct {
	*baseParser
	config *SaleParserConfig
}

// NewSaleParser builds a parser for the given column mapping.
func NewSaleParser(config *SaleParserConfig, parse *ParseConfig) (*SaleParser, error) {
	if config == nil {
		config = DefaultSaleParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sale_parser", config, err)
	}

	if parse == nil {
		parse = DefaultParseConfig()
	}
	parse.HasHeader = config.HasHeader
	parse.Delimiter = config.Delimiter

	return &SaleParser{
		baseParser: newBaseParser(parse, "sale_parser"),
		config:     config,
	}, nil
}

// ParseSales reads the file and returns the sales in file order, each with
// its installment rows attached.
func (sp *SaleParser) ParseSales(ctx context.Context, path string) ([]*models.Sale, *ParseStats, error) {
	sp.log.WithField("path", path).Info("Importing sales")

	file, reader, err := sp.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	state := newParseState(ctx)
	stats := &ParseStats{}

	required := []string{
		sp.config.ColumnName("id"),
		sp.config.ColumnName("code"),
		sp.config.ColumnName("date"),
		sp.config.ColumnName("total_amount"),
	}
	if err := sp.readHeaders(reader, state, path, required); err != nil {
		return nil, stats, err
	}

	var sales []*models.Sale
	byID := make(map[string]*models.Sale)

	for {
		row, err := sp.readRow(reader, state)
		if err != nil {
			if err == io.EOF {
				break
			}
			if state.cancelled() {
				return sales, stats, err
			}
			stats.addError(state.line, "", "", "unreadable csv row", err)
			if capErr := sp.checkCaps(stats, state, path); capErr != nil {
				return sales, stats, capErr
			}
			continue
		}
		stats.RowsParsed++
		if err := sp.checkCaps(stats, state, path); err != nil {
			return sales, stats, err
		}

		if sp.isInstallmentRow(row, state) {
			sp.parseInstallmentRow(row, state, byID, stats)
			continue
		}

		sale, ok := sp.parseSaleRow(row, state, stats)
		if !ok {
			continue
		}
		if _, seen := byID[sale.ID]; seen {
			stats.addError(state.line, sp.config.ColumnName("id"), sale.ID,
				"duplicate sale id", nil)
			continue
		}
		sales = append(sales, sale)
		byID[sale.ID] = sale
		stats.RecordsValid++
	}
	stats.TotalLines = state.line

	sp.log.WithFields(logger.Fields{
		"path":   path,
		"sales":  len(sales),
		"rows":   stats.RowsParsed,
		"errors": len(stats.Errors),
	}).Info("Sale import complete")
	if stats.HasErrors() {
		sp.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some sale rows were rejected")
	}
	return sales, stats, nil
}

func (sp *SaleParser) isInstallmentRow(row []string, state *parseState) bool {
	return fieldValue(row, state, sp.config.ColumnName("installment_number")) != ""
}

func (sp *SaleParser) parseSaleRow(row []string, state *parseState, stats *ParseStats) (*models.Sale, bool) {
	idCol := sp.config.ColumnName("id")
	id := fieldValue(row, state, idCol)
	if id == "" {
		stats.addError(state.line, idCol, "", "sale id is empty", nil)
		return nil, false
	}

	codeCol := sp.config.ColumnName("code")
	code := fieldValue(row, state, codeCol)
	if code == "" {
		stats.addError(state.line, codeCol, "", "sale code is empty", nil)
		return nil, false
	}

	dateCol := sp.config.ColumnName("date")
	date, err := models.ParseTimeWithFormats(fieldValue(row, state, dateCol))
	if err != nil {
		stats.addError(state.line, dateCol, fieldValue(row, state, dateCol),
			"unparseable sale date", err)
		return nil, false
	}

	totalCol := sp.config.ColumnName("total_amount")
	total, err := models.ParseDecimalFromString(fieldValue(row, state, totalCol))
	if err != nil {
		stats.addError(state.line, totalCol, fieldValue(row, state, totalCol),
			"unparseable total amount", err)
		return nil, false
	}

	// Net defaults to the total when the export omits fees.
	net := total
	netCol := sp.config.ColumnName("net_amount")
	if raw := fieldValue(row, state, netCol); raw != "" {
		net, err = models.ParseDecimalFromString(raw)
		if err != nil {
			stats.addError(state.line, netCol, raw, "unparseable net amount", err)
			return nil, false
		}
	}

	sale := &models.Sale{
		ID:           id,
		Code:         code,
		CustomerName: fieldValue(row, state, sp.config.ColumnName("customer_name")),
		Channel:      fieldValue(row, state, sp.config.ColumnName("channel")),
		Date:         date,
		TotalAmount:  total,
		NetAmount:    net,
	}
	if err := sale.Validate(); err != nil {
		stats.addError(state.line, idCol, id, "sale failed validation", err)
		return nil, false
	}
	return sale, true
}

func (sp *SaleParser) parseInstallmentRow(row []string, state *parseState, byID map[string]*models.Sale, stats *ParseStats) {
	idCol := sp.config.ColumnName("id")
	id := fieldValue(row, state, idCol)
	sale, ok := byID[id]
	if !ok {
		stats.addError(state.line, idCol, id,
			"installment row references a sale not seen earlier in the file", nil)
		return
	}

	numCol := sp.config.ColumnName("installment_number")
	number, err := strconv.Atoi(fieldValue(row, state, numCol))
	if err != nil || number <= 0 {
		stats.addError(state.line, numCol, fieldValue(row, state, numCol),
			"installment number must be a positive integer", err)
		return
	}
	if _, exists := sale.InstallmentByNumber(number); exists {
		stats.addError(state.line, numCol, fieldValue(row, state, numCol),
			"duplicate installment number for this sale", nil)
		return
	}

	amountCol := sp.config.ColumnName("installment_amount")
	amount, err := models.ParseDecimalFromString(fieldValue(row, state, amountCol))
	if err != nil {
		stats.addError(state.line, amountCol, fieldValue(row, state, amountCol),
			"unparseable installment amount", err)
		return
	}

	dueCol := sp.config.ColumnName("due_date")
	due, err := models.ParseTimeWithFormats(fieldValue(row, state, dueCol))
	if err != nil {
		stats.addError(state.line, dueCol, fieldValue(row, state, dueCol),
			"unparseable installment due date", err)
		return
	}

	inst := &models.Installment{
		SaleID:  sale.ID,
		Number:  number,
		Amount:  amount,
		DueDate: due,
		Status:  models.InstallmentPending,
	}
	if err := inst.Validate(); err != nil {
		stats.addError(state.line, numCol, fieldValue(row, state, numCol),
			"installment failed validation", err)
		return
	}
	sale.Installments = append(sale.Installments, inst)
}

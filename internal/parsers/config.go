package parsers

import (
	"fmt"
	"strings"
)

// SaleParserConfig maps the sale export's columns onto the fields the
// importer needs. Aliases let one deployment rename columns without code
// changes.
type SaleParserConfig struct {
	IDColumn          string            `json:"id_column"`
	CodeColumn        string            `json:"code_column"`
	CustomerColumn    string            `json:"customer_column"`
	ChannelColumn     string            `json:"channel_column"`
	DateColumn        string            `json:"date_column"`
	TotalAmountColumn string            `json:"total_amount_column"`
	NetAmountColumn   string            `json:"net_amount_column"`
	InstNumberColumn  string            `json:"installment_number_column"`
	InstAmountColumn  string            `json:"installment_amount_column"`
	DueDateColumn     string            `json:"due_date_column"`
	HasHeader         bool              `json:"has_header"`
	Delimiter         rune              `json:"delimiter"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
}

// DefaultSaleParserConfig matches the billing system's standard export.
func DefaultSaleParserConfig() *SaleParserConfig {
	return &SaleParserConfig{
		IDColumn:          "id",
		CodeColumn:        "code",
		CustomerColumn:    "customer_name",
		ChannelColumn:     "channel",
		DateColumn:        "date",
		TotalAmountColumn: "total_amount",
		NetAmountColumn:   "net_amount",
		InstNumberColumn:  "installment_number",
		InstAmountColumn:  "installment_amount",
		DueDateColumn:     "due_date",
		HasHeader:         true,
		Delimiter:         ',',
	}
}

// Validate checks the configuration names every required column.
func (c *SaleParserConfig) Validate() error {
	required := map[string]string{
		"id column":           c.IDColumn,
		"code column":         c.CodeColumn,
		"date column":         c.DateColumn,
		"total amount column": c.TotalAmountColumn,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	return nil
}

// ColumnName resolves a standard field name to the configured column,
// honoring aliases first.
func (c *SaleParserConfig) ColumnName(standard string) string {
	if alias, ok := c.ColumnAliases[standard]; ok {
		return alias
	}
	switch standard {
	case "id":
		return c.IDColumn
	case "code":
		return c.CodeColumn
	case "customer_name":
		return c.CustomerColumn
	case "channel":
		return c.ChannelColumn
	case "date":
		return c.DateColumn
	case "total_amount":
		return c.TotalAmountColumn
	case "net_amount":
		return c.NetAmountColumn
	case "installment_number":
		return c.InstNumberColumn
	case "installment_amount":
		return c.InstAmountColumn
	case "due_date":
		return c.DueDateColumn
	default:
		return standard
	}
}

// TransactionParserConfig maps the ledger export's columns onto transaction
// fields.
type TransactionParserConfig struct {
	IDColumn          string            `json:"id_column"`
	WalletColumn      string            `json:"wallet_column"`
	DateColumn        string            `json:"date_column"`
	AmountColumn      string            `json:"amount_column"`
	TypeColumn        string            `json:"type_column"`
	DescriptionColumn string            `json:"description_column"`
	NameColumn        string            `json:"name_column"`
	MethodColumn      string            `json:"method_column"`
	InstitutionColumn string            `json:"institution_column"`
	AccountColumn     string            `json:"account_column"`
	HasHeader         bool              `json:"has_header"`
	Delimiter         rune              `json:"delimiter"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
}

// DefaultTransactionParserConfig matches the ledger system's standard export.
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		IDColumn:          "id",
		WalletColumn:      "wallet_id",
		DateColumn:        "date",
		AmountColumn:      "amount",
		TypeColumn:        "type",
		DescriptionColumn: "description",
		NameColumn:        "name",
		MethodColumn:      "payment_method",
		InstitutionColumn: "institution",
		AccountColumn:     "account_id",
		HasHeader:         true,
		Delimiter:         ',',
	}
}

// Validate checks the configuration names every required column.
func (c *TransactionParserConfig) Validate() error {
	required := map[string]string{
		"id column":     c.IDColumn,
		"date column":   c.DateColumn,
		"amount column": c.AmountColumn,
		"type column":   c.TypeColumn,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	return nil
}

// ColumnName resolves a standard field name to the configured column,
// honoring aliases first.
func (c *TransactionParserConfig) ColumnName(standard string) string {
	if alias, ok := c.ColumnAliases[standard]; ok {
		return alias
	}
	switch standard {
	case "id":
		return c.IDColumn
	case "wallet_id":
		return c.WalletColumn
	case "date":
		return c.DateColumn
	case "amount":
		return c.AmountColumn
	case "type":
		return c.TypeColumn
	case "description":
		return c.DescriptionColumn
	case "name":
		return c.NameColumn
	case "payment_method":
		return c.MethodColumn
	case "institution":
		return c.InstitutionColumn
	case "account_id":
		return c.AccountColumn
	default:
		return standard
	}
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a ledger transaction
type TransactionType string

const (
	// TransactionTypeIncome represents an incoming transaction; only these
	// are reconciliation candidates
	TransactionTypeIncome TransactionType = "INCOME"
	// TransactionTypeExpense represents an outgoing transaction
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// ReconciliationState tracks whether an entity has an active link
type ReconciliationState string

const (
	StateUnreconciled ReconciliationState = "UNRECONCILED"
	StateReconciled   ReconciliationState = "RECONCILED"
)

// InstallmentStatus represents the payment status of an installment
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// Sale represents a recorded revenue event, possibly split into installments.
// Sales are created by an external import collaborator and are immutable here
// except for reconciliation state.
type Sale struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	CustomerName string          `json:"customerName"`
	Channel      string          `json:"channel"`
	Date         time.Time       `json:"date"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	NetAmount    decimal.Decimal `json:"netAmount"`
	Installments []*Installment  `json:"installments,omitempty"`
}

// Validate performs basic validation on the Sale
func (s *Sale) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("sale ID cannot be empty")
	}

	if strings.TrimSpace(s.Code) == "" {
		return fmt.Errorf("sale code cannot be empty")
	}

	if s.Date.IsZero() {
		return fmt.Errorf("sale date cannot be zero")
	}

	if !s.TotalAmount.IsPositive() {
		return fmt.Errorf("sale total amount must be positive, got %s", s.TotalAmount)
	}

	for _, inst := range s.Installments {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("installment %d: %w", inst.Number, err)
		}
	}

	return nil
}

// HasInstallments reports whether the sale is split into scheduled payments.
func (s *Sale) HasInstallments() bool {
	return len(s.Installments) > 0
}

// InstallmentByNumber returns the installment with the given sequence number.
func (s *Sale) InstallmentByNumber(number int) (*Installment, bool) {
	for _, inst := range s.Installments {
		if inst.Number == number {
			return inst, true
		}
	}
	return nil, false
}

// InstallmentTotal sums the installment amounts. It is expected, not
// enforced, to approximate TotalAmount.
func (s *Sale) InstallmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}

// String returns a string representation of the Sale
func (s *Sale) String() string {
	return fmt.Sprintf("Sale{ID: %s, Code: %s, Amount: %s, Date: %s, Installments: %d}",
		s.ID, s.Code, s.TotalAmount.String(), s.Date.Format("2006-01-02"), len(s.Installments))
}

// Installment represents a scheduled partial payment belonging to one Sale
type Installment struct {
	SaleID  string            `json:"saleId"`
	Number  int               `json:"number"`
	Amount  decimal.Decimal   `json:"amount"`
	DueDate time.Time         `json:"dueDate"`
	Status  InstallmentStatus `json:"status"`
}

// Validate performs basic validation on the Installment
func (i *Installment) Validate() error {
	if i.Number <= 0 {
		return fmt.Errorf("installment number must be positive, got %d", i.Number)
	}

	if !i.Amount.IsPositive() {
		return fmt.Errorf("installment amount must be positive, got %s", i.Amount)
	}

	if i.DueDate.IsZero() {
		return fmt.Errorf("installment due date cannot be zero")
	}

	return nil
}

// Transaction represents a ledger/bank movement with a signed amount and
// free-text description
type Transaction struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"walletId"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Description   string          `json:"description"`
	Name          string          `json:"name"`
	PaymentMethod string          `json:"paymentMethod"`
	Provenance    Provenance      `json:"provenance,omitempty"`

	// Reconciliation state, mutated only by the link writer and manual
	// removal.
	Reconciled         bool   `json:"reconciled"`
	ReconciledSaleCode string `json:"reconciledSaleCode,omitempty"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	return nil
}

// SearchText returns the free text used for similarity and pattern scoring.
// Description and Name come from disparate sources; either may be empty.
func (t *Transaction) SearchText() string {
	if t.Description == "" {
		return t.Name
	}
	if t.Name == "" || t.Name == t.Description {
		return t.Description
	}
	return t.Description + " " + t.Name
}

// AbsoluteAmount returns the absolute value of the transaction amount
func (t *Transaction) AbsoluteAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Wallet: %s, Amount: %s, Type: %s, Date: %s}",
		t.ID, t.WalletID, t.Amount.String(), t.Type, t.Date.Format("2006-01-02"))
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTransactionType parses and validates a transaction type from string
func ParseTransactionType(s string) (TransactionType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "INCOME", "IN", "CREDIT":
		return TransactionTypeIncome, nil
	case "EXPENSE", "OUT", "DEBIT":
		return TransactionTypeExpense, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be INCOME or EXPENSE", s)
	}
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006 15:04:05",
		"02/01/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// SameCalendarDay reports whether two dates fall on the same calendar day.
func SameCalendarDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

// SameCalendarMonth reports whether two dates fall in the same calendar month.
func SameCalendarMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// DaysBetween returns the absolute number of whole days between two dates,
// comparing calendar days rather than elapsed hours.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	diff := da.Sub(db)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

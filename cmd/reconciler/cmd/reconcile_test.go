package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func resetReconcileFlags() {
	dbPath = ""
	saleID = ""
	transactionID = ""
	walletID = ""
	windowDays = 0
	threshold = 0
	useLearning = false
	outputFormat = "console"
	outputFile = ""
	viper.Reset()
}

func TestValidateReconcileFlags(t *testing.T) {
	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name: "valid flags",
			setupFlags: func() {
				dbPath = "ledger.db"
			},
			expectError: false,
		},
		{
			name:          "missing db",
			setupFlags:    func() {},
			expectError:   true,
			errorContains: "db is required",
		},
		{
			name: "db from viper",
			setupFlags: func() {
				viper.Set("db", "ledger.db")
			},
			expectError: false,
		},
		{
			name: "sale and transaction scope together",
			setupFlags: func() {
				dbPath = "ledger.db"
				saleID = "S-1"
				transactionID = "tx-1"
			},
			expectError:   true,
			errorContains: "mutually exclusive",
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				dbPath = "ledger.db"
				outputFormat = "xml"
			},
			expectError:   true,
			errorContains: "invalid output format",
		},
		{
			name: "threshold out of range",
			setupFlags: func() {
				dbPath = "ledger.db"
				threshold = 150
			},
			expectError:   true,
			errorContains: "between 0 and 100",
		},
		{
			name: "negative window",
			setupFlags: func() {
				dbPath = "ledger.db"
				windowDays = -3
			},
			expectError:   true,
			errorContains: "window must be positive",
		},
		{
			name: "output directory missing",
			setupFlags: func() {
				dbPath = "ledger.db"
				outputFile = "/no/such/dir/report.json"
			},
			expectError:   true,
			errorContains: "output directory does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReconcileFlags()
			tt.setupFlags()

			cmd := &cobra.Command{}
			err := validateReconcileFlags(cmd, []string{})

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestReconcileCommandHelp(t *testing.T) {
	cmd := reconcileCmd

	for _, name := range []string{"db", "sale-id", "transaction-id", "wallet", "window", "threshold", "learning", "output-format", "output-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not found", name)
		}
	}

	var helpOutput bytes.Buffer
	cmd.SetOut(&helpOutput)
	cmd.Help()

	helpText := helpOutput.String()

	expectedSections := []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--db",
		"--sale-id",
		"--output-format",
	}

	for _, section := range expectedSections {
		if !strings.Contains(helpText, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestValidateLinkFlags(t *testing.T) {
	tests := []struct {
		name          string
		db            string
		sale          string
		transaction   string
		installment   int
		errorContains string
	}{
		{"valid", "ledger.db", "S-1", "tx-1", 0, ""},
		{"valid installment", "ledger.db", "S-1", "tx-1", 2, ""},
		{"missing db", "", "S-1", "tx-1", 0, "db is required"},
		{"missing sale", "ledger.db", "", "tx-1", 0, "sale is required"},
		{"missing transaction", "ledger.db", "S-1", "", 0, "transaction is required"},
		{"negative installment", "ledger.db", "S-1", "tx-1", -1, "installment must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linkDB = tt.db
			linkSale = tt.sale
			linkTransaction = tt.transaction
			linkInstallment = tt.installment

			err := validateLinkFlags(&cobra.Command{}, []string{})
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("expected error but got none")
			} else if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
			}
		})
	}
}

func TestValidateImportFlags(t *testing.T) {
	tests := []struct {
		name          string
		db            string
		sales         string
		transactions  string
		delimiter     string
		errorContains string
	}{
		{"valid sales only", "ledger.db", "sales.csv", "", ",", ""},
		{"valid both", "ledger.db", "sales.csv", "bank.csv", ";", ""},
		{"missing db", "", "sales.csv", "", ",", "db is required"},
		{"no input files", "ledger.db", "", "", ",", "at least one"},
		{"bad delimiter", "ledger.db", "sales.csv", "", "||", "single character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importDB = tt.db
			salesFile = tt.sales
			transactionsFile = tt.transactions
			importDelimiter = tt.delimiter

			err := validateImportFlags(&cobra.Command{}, []string{})
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("expected error but got none")
			} else if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
			}
		})
	}
}

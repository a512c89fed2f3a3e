package cmd

import (
	"context"
	"fmt"
	"os"

	"receivables-reconciler/cmd/reconciler/config"
	"receivables-reconciler/internal/parsers"
	"receivables-reconciler/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the import command
var (
	importDB           string
	salesFile          string
	transactionsFile   string
	importDelimiter    string
	importAllowPartial bool
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load sales and transactions from CSV files into the ledger",
	Long: `Import parses CSV exports and stores the records in the SQLite
ledger. Sales files may mix sale rows and installment rows under one
header: a row with installment_number set belongs to the sale whose id
appeared on an earlier row.

Row-level problems are collected rather than aborting the whole file.
By default the import fails when any row is rejected; pass
--allow-partial to keep the valid rows and report the rest.

Examples:
  reconciler import --db ledger.db --sales sales.csv
  reconciler import --db ledger.db --transactions bank.csv
  reconciler import --db ledger.db --sales sales.csv --transactions bank.csv --allow-partial`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDB, "db", "", "path to the SQLite ledger database (required)")
	importCmd.Flags().StringVar(&salesFile, "sales", "", "path to sales CSV file")
	importCmd.Flags().StringVar(&transactionsFile, "transactions", "", "path to transactions CSV file")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", ",", "CSV field delimiter")
	importCmd.Flags().BoolVar(&importAllowPartial, "allow-partial", false, "store valid rows even when some rows are rejected")

	importCmd.MarkFlagRequired("db")
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	if importDB == "" {
		return fmt.Errorf("db is required")
	}
	if salesFile == "" && transactionsFile == "" {
		return fmt.Errorf("at least one of --sales or --transactions is required")
	}
	if len(importDelimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character")
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log, err := setupLogger()
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(importDB, log)
	if err != nil {
		return HandleCLIError(err)
	}
	defer st.Close()

	delimiter := rune(importDelimiter[0])

	if salesFile != "" {
		if err := importSales(ctx, st, delimiter); err != nil {
			return err
		}
	}
	if transactionsFile != "" {
		if err := importTransactions(ctx, st, delimiter); err != nil {
			return err
		}
	}
	return nil
}

func importSales(ctx context.Context, st store.Store, delimiter rune) error {
	saleConfig := config.CreateSaleParserConfig()
	saleConfig.Delimiter = delimiter
	parser, err := parsers.NewSaleParser(saleConfig, nil)
	if err != nil {
		return HandleCLIError(err)
	}

	sales, stats, err := parser.ParseSales(ctx, salesFile)
	if err != nil {
		return HandleCLIError(err)
	}
	reportParseStats("sales", salesFile, stats)
	if stats.HasErrors() && !importAllowPartial {
		return fmt.Errorf("%d rows rejected in %s (use --allow-partial to import the valid rows)", len(stats.Errors), salesFile)
	}

	for _, sale := range sales {
		if err := st.SaveSale(ctx, sale); err != nil {
			return HandleCLIError(err)
		}
	}
	fmt.Fprintf(os.Stdout, "Imported %d sales from %s\n", len(sales), salesFile)
	return nil
}

func importTransactions(ctx context.Context, st store.Store, delimiter rune) error {
	txConfig := config.CreateTransactionParserConfig()
	txConfig.Delimiter = delimiter
	parser, err := parsers.NewTransactionParser(txConfig, nil)
	if err != nil {
		return HandleCLIError(err)
	}

	transactions, stats, err := parser.ParseTransactions(ctx, transactionsFile)
	if err != nil {
		return HandleCLIError(err)
	}
	reportParseStats("transactions", transactionsFile, stats)
	if stats.HasErrors() && !importAllowPartial {
		return fmt.Errorf("%d rows rejected in %s (use --allow-partial to import the valid rows)", len(stats.Errors), transactionsFile)
	}

	for _, tx := range transactions {
		if err := st.SaveTransaction(ctx, tx); err != nil {
			return HandleCLIError(err)
		}
	}
	fmt.Fprintf(os.Stdout, "Imported %d transactions from %s\n", len(transactions), transactionsFile)
	return nil
}

func reportParseStats(kind, path string, stats *parsers.ParseStats) {
	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Parsed %s file %s: %s\n", kind, path, stats)
	}
	if !stats.HasErrors() {
		return
	}
	fmt.Fprintf(os.Stderr, "Rejected %d rows in %s:\n", len(stats.Errors), path)
	for _, rowErr := range stats.SampleErrors(10) {
		fmt.Fprintf(os.Stderr, "  %s\n", rowErr)
	}
	if len(stats.Errors) > 10 {
		fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(stats.Errors)-10)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"receivables-reconciler/cmd/reconciler/config"
	"receivables-reconciler/internal/reconciler"
	"receivables-reconciler/internal/reporter"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	dbPath        string
	saleID        string
	transactionID string
	walletID      string
	windowDays    int
	threshold     float64
	useLearning   bool
	outputFormat  string
	outputFile    string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match open sales against imported transactions",
	Long: `Reconcile scores every unresolved sale and installment against the
candidate transactions in the database, links the best match when its
confidence clears the floor, and reports what was matched and why the
rest was not.

By default the whole ledger is processed. Scope the run to a single
sale or transaction with --sale-id or --transaction-id.

Examples:
  # Full reconciliation run
  reconciler reconcile --db ledger.db

  # Single sale, JSON report to a file
  reconciler reconcile --db ledger.db --sale-id S-1001 \
    --output-format json --output-file report.json

  # Restrict to one wallet with a stricter confidence floor
  reconciler reconcile --db ledger.db --wallet wallet-1 --threshold 85

  # Use the adaptive scorer once enough manual links exist
  reconciler reconcile --db ledger.db --learning`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite ledger database (required)")

	// Scope flags
	reconcileCmd.Flags().StringVar(&saleID, "sale-id", "", "reconcile a single sale")
	reconcileCmd.Flags().StringVar(&transactionID, "transaction-id", "", "reconcile a single transaction")
	reconcileCmd.Flags().StringVarP(&walletID, "wallet", "w", "", "restrict candidates to one wallet")

	// Scoring flags
	reconcileCmd.Flags().IntVar(&windowDays, "window", 0, "candidate date window in days (0 keeps the default)")
	reconcileCmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "confidence floor override (0-100, 0 keeps the default)")
	reconcileCmd.Flags().BoolVar(&useLearning, "learning", false, "use the adaptive scorer when enough manual links exist")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.MarkFlagRequired("db")

	// Bind flags to viper
	viper.BindPFlag("db", reconcileCmd.Flags().Lookup("db"))
	viper.BindPFlag("wallet", reconcileCmd.Flags().Lookup("wallet"))
	viper.BindPFlag("threshold", reconcileCmd.Flags().Lookup("threshold"))
	viper.BindPFlag("learning", reconcileCmd.Flags().Lookup("learning"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	if viper.GetString("db") != "" {
		dbPath = viper.GetString("db")
	}
	if viper.GetString("wallet") != "" {
		walletID = viper.GetString("wallet")
	}
	if viper.GetFloat64("threshold") != 0 {
		threshold = viper.GetFloat64("threshold")
	}
	if viper.GetBool("learning") {
		useLearning = true
	}
	if viper.GetString("output-format") != "" {
		outputFormat = viper.GetString("output-format")
	}
	if viper.GetString("output-file") != "" {
		outputFile = viper.GetString("output-file")
	}

	if dbPath == "" {
		return fmt.Errorf("db is required")
	}

	if saleID != "" && transactionID != "" {
		return fmt.Errorf("--sale-id and --transaction-id are mutually exclusive")
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100")
	}

	if windowDays < 0 {
		return fmt.Errorf("window must be positive")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log, err := setupLogger()
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	st, err := store.OpenSQLite(dbPath, log)
	if err != nil {
		return HandleCLIError(err)
	}
	defer st.Close()

	scoringConfig, err := config.CreateScoringConfig(threshold, windowDays)
	if err != nil {
		return err
	}

	engine, err := reconciler.NewEngine(st, scoringConfig, reconciler.Options{
		WalletID:    walletID,
		UseLearning: useLearning,
	})
	if err != nil {
		return HandleCLIError(err)
	}

	var result *reconciler.BatchResult
	switch {
	case saleID != "":
		result, err = engine.ReconcileSale(ctx, saleID)
	case transactionID != "":
		result, err = engine.ReconcileTransaction(ctx, transactionID)
	default:
		result, err = engine.ReconcileAll(ctx)
	}
	if err != nil {
		return HandleCLIError(err)
	}

	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return HandleCLIError(err)
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := generator.GenerateReport(result, output); err != nil {
		return HandleCLIError(err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed.\n")
		fmt.Fprintf(os.Stderr, "Processed %d targets: %d matched, %d unmatched.\n",
			result.TotalProcessed, result.Matched, result.Unmatched)
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

// setupLogger builds the process logger from the global flags and installs
// it as the package default so library code picks it up.
func setupLogger() (logger.Logger, error) {
	logConfig, err := config.CreateLoggerConfig(viper.GetBool("verbose"), viper.GetString("log-format"))
	if err != nil {
		return nil, err
	}
	logConfig.Output = logger.StderrOutput
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobalLogger(log)
	return log, nil
}

// Package config assembles the component configurations the CLI hands to the
// engine, parsers and reporter, applying command-line overrides on top of the
// defaults.
package config

import (
	"fmt"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/parsers"
	"receivables-reconciler/internal/reporter"
	"receivables-reconciler/pkg/logger"

	"github.com/spf13/viper"
)

// CreateScoringConfig returns the scoring configuration with the CLI
// overrides applied. Zero values keep the defaults.
func CreateScoringConfig(threshold float64, windowDays int) (*matcher.ScoringConfig, error) {
	config := matcher.DefaultScoringConfig()
	if threshold != 0 {
		if threshold < 0 || threshold > 100 {
			return nil, fmt.Errorf("confidence threshold must be between 0 and 100, got %.1f", threshold)
		}
		config.MinConfidence = threshold
	}
	if windowDays != 0 {
		if windowDays < 0 {
			return nil, fmt.Errorf("date window must be positive, got %d", windowDays)
		}
		config.DateWindowDays = windowDays
	}
	return config, nil
}

// CreateSaleParserConfig returns the sale parser configuration. Deployments
// whose export renames columns override them in the config file under
// sales.columns, for example sales.columns.total_amount: valor_total.
func CreateSaleParserConfig() *parsers.SaleParserConfig {
	config := parsers.DefaultSaleParserConfig()
	config.ColumnAliases = columnOverrides("sales.columns")
	return config
}

// CreateTransactionParserConfig returns the transaction parser configuration.
// Column renames come from transactions.columns in the config file.
func CreateTransactionParserConfig() *parsers.TransactionParserConfig {
	config := parsers.DefaultTransactionParserConfig()
	config.ColumnAliases = columnOverrides("transactions.columns")
	return config
}

// columnOverrides reads a field-to-column rename map from the loaded config
// file. Missing keys leave the defaults in place.
func columnOverrides(key string) map[string]string {
	overrides := viper.GetStringMapString(key)
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

// CreateReportConfig returns the report configuration for an output format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		// CSV carries only the per-target rows.
		config.IncludeErrors = false
	default:
		return nil, fmt.Errorf("invalid output format %q: valid formats are console, json, csv", format)
	}
	return config, nil
}

// CreateLoggerConfig returns the logger configuration for the CLI flags.
func CreateLoggerConfig(verbose bool, format string) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if verbose {
		config.Level = logger.DebugLevel
	}
	switch format {
	case "", "text":
		config.Format = logger.TextFormat
	case "json":
		config.Format = logger.JSONFormat
	default:
		return nil, fmt.Errorf("invalid log format %q: valid formats are text, json", format)
	}
	return config, nil
}

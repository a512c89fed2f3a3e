package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleCLIError prints the detailed context of an error to stderr and
// returns the error unchanged so cobra still reports the failure. Commands
// route their errors through it before returning.
func HandleCLIError(err error) error {
	if err == nil {
		return nil
	}
	NewCLIErrorHandler().Report(err)
	return err
}

// ExitCode maps an error to the process exit code. Used by main after
// Execute returns.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if engineErr, ok := errors.AsEngineError(err); ok {
		return engineErr.GetExitCode()
	}
	return 1
}

// Report writes the user-facing explanation of err to stderr.
func (h *CLIErrorHandler) Report(err error) {
	h.logger.WithError(err).Error("Command failed")

	if engineErr, ok := errors.AsEngineError(err); ok {
		h.reportEngineError(engineErr)
		return
	}
	h.reportGenericError(err)
}

// reportEngineError prints an EngineError with its context and suggestion
func (h *CLIErrorHandler) reportEngineError(err *errors.EngineError) {
	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "Context:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Suggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(os.Stderr, "%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "Underlying error: %v\n", err.Cause)
	}
}

// reportGenericError handles non-EngineError types
func (h *CLIErrorHandler) reportGenericError(err error) {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(os.Stderr, "Suggestion: Free up disk space and try again\n")
		return
	}

	if h.verbose {
		fmt.Fprintf(os.Stderr, "For more details, check the logs or run with --verbose flag\n")
	}
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV file format and structure
• Check for proper column headers and data types
• Ensure the file uses UTF-8 encoding
• Use 'reconciler import --help' for examples of correct file formats`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify date formats use YYYY-MM-DD
• Ensure amounts are decimal numbers without currency symbols
• Check that all values are within acceptable ranges`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'reconciler reconcile --help' to see all available options
• Try running with default settings first`

	case errors.CategoryStorage:
		return `Storage error help:
• Check that the database file exists and is writable
• Verify no other process holds a lock on the database
• Run 'reconciler import' first if the ledger is empty
• Check available disk space`

	case errors.CategoryMatching:
		return `Matching error help:
• Check data quality in the imported sales and transactions
• Try lowering the confidence floor with --threshold
• Verify the wallet filter is not excluding all candidates
• Create manual links for matches the scorer cannot find`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler <command> --help' for command-specific help
• Report bugs or ask for help on the project repository`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

// Package reporter renders batch reconciliation results for people and
// machines. Console output is a sectioned plain-text report for terminal use,
// JSON is the structured form for downstream tooling, and CSV flattens the
// per-target outcomes for spreadsheets.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"receivables-reconciler/internal/reconciler"
)

// OutputFormat selects how a batch result is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeMatchedTargets   bool `json:"include_matched_targets"`
	IncludeUnmatchedTargets bool `json:"include_unmatched_targets"`
	IncludeErrors           bool `json:"include_errors"`

	// MaxListItems truncates the per-target lists in console output; 0
	// disables truncation.
	MaxListItems int `json:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                  FormatConsole,
		IncludeMatchedTargets:   true,
		IncludeUnmatchedTargets: true,
		IncludeErrors:           true,
		MaxListItems:            20,
		CSVDelimiter:            ',',
		CSVHeaders:              true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	return nil
}

// ReportGenerator renders BatchResults in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the given configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the rendered result to writer.
func (rg *ReportGenerator) GenerateReport(result *reconciler.BatchResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.BatchResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n", result.Duration)
	if result.LearningApplied {
		fmt.Fprintf(writer, "Scoring:  adaptive (learning gate open)\n")
	}
	fmt.Fprintf(writer, "\n=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Targets Processed: %d\n", result.TotalProcessed)
	fmt.Fprintf(writer, "Matched:           %d (%.1f%%)\n",
		result.Matched, percentage(result.Matched, result.TotalProcessed))
	fmt.Fprintf(writer, "Unmatched:         %d (%.1f%%)\n",
		result.Unmatched, percentage(result.Unmatched, result.TotalProcessed))

	fmt.Fprintf(writer, "\n=== DETAILS ===\n")
	fmt.Fprintf(writer, "Sales Processed:        %d\n", result.Details.SalesProcessed)
	fmt.Fprintf(writer, "Transactions Examined:  %d\n", result.Details.TransactionsProcessed)
	fmt.Fprintf(writer, "New Links Created:      %d\n", result.Details.NewLinksCreated)
	fmt.Fprintf(writer, "Already Linked Skipped: %d\n", result.Details.AlreadyLinkedSkipped)
	fmt.Fprintf(writer, "Duplicates Suppressed:  %d\n", result.Details.DuplicatesSuppressed)
	fmt.Fprintf(writer, "No Match Found:         %d\n", result.Details.NoMatchFound)
	fmt.Fprintf(writer, "Ambiguous Matches:      %d\n", result.Details.MultipleMatchesFound)

	if rg.config.IncludeMatchedTargets && len(result.MatchedTargets) > 0 {
		fmt.Fprintf(writer, "\n=== MATCHED TARGETS ===\n")
		rg.printMatchedTargets(result.MatchedTargets, writer)
	}

	if rg.config.IncludeUnmatchedTargets && len(result.UnmatchedTargets) > 0 {
		fmt.Fprintf(writer, "\n=== UNMATCHED TARGETS ===\n")
		rg.printUnmatchedTargets(result.UnmatchedTargets, writer)
	}

	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		fmt.Fprintf(writer, "\n=== ERRORS ===\n")
		for _, msg := range result.Errors {
			fmt.Fprintf(writer, "  - %s\n", msg)
		}
	}
	return nil
}

func (rg *ReportGenerator) printMatchedTargets(targets []reconciler.MatchedTarget, writer io.Writer) {
	for i, target := range targets {
		if rg.truncated(i, len(targets), writer) {
			break
		}
		label := target.SaleCode
		if target.InstallmentNumber != nil {
			label += "#" + strconv.Itoa(*target.InstallmentNumber)
		}
		note := ""
		if target.Anticipation {
			note = " [anticipation]"
		}
		fmt.Fprintf(writer, "  %d. Sale %s -> Transaction %s (confidence %.1f)%s\n",
			i+1, label, target.TransactionID, target.Confidence, note)
	}
}

func (rg *ReportGenerator) printUnmatchedTargets(targets []reconciler.UnmatchedTarget, writer io.Writer) {
	// Group by reason so operators can triage by cause.
	byReason := make(map[string][]reconciler.UnmatchedTarget)
	for _, target := range targets {
		byReason[target.Reason] = append(byReason[target.Reason], target)
	}

	reasons := make([]string, 0, len(byReason))
	for reason := range byReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	for _, reason := range reasons {
		group := byReason[reason]
		fmt.Fprintf(writer, "%s (%d):\n", strings.ReplaceAll(reason, "_", " "), len(group))
		for i, target := range group {
			if rg.truncated(i, len(group), writer) {
				break
			}
			if target.SaleCode == "" && target.TransactionID != "" {
				fmt.Fprintf(writer, "  - Transaction %s\n", target.TransactionID)
				continue
			}
			label := target.SaleCode
			if target.InstallmentNumber != nil {
				label += "#" + strconv.Itoa(*target.InstallmentNumber)
			}
			fmt.Fprintf(writer, "  - Sale %s\n", label)
		}
	}
}

// truncated writes the "... and N more" marker and reports whether the list
// was cut off at the configured cap.
func (rg *ReportGenerator) truncated(index, total int, writer io.Writer) bool {
	if rg.config.MaxListItems > 0 && index >= rg.config.MaxListItems && total > rg.config.MaxListItems {
		fmt.Fprintf(writer, "  ... and %d more\n", total-rg.config.MaxListItems)
		return true
	}
	return false
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.BatchResult, writer io.Writer) error {
	filtered := rg.filterResultForOutput(result)
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(filtered)
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.BatchResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Outcome",
			"Sale_ID",
			"Sale_Code",
			"Installment",
			"Transaction_ID",
			"Confidence",
			"Anticipation",
			"Reason",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeMatchedTargets {
		for _, target := range result.MatchedTargets {
			record := []string{
				"matched",
				target.SaleID,
				target.SaleCode,
				installmentField(target.InstallmentNumber),
				target.TransactionID,
				fmt.Sprintf("%.2f", target.Confidence),
				strconv.FormatBool(target.Anticipation),
				"",
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write matched record: %w", err)
			}
		}
	}

	if rg.config.IncludeUnmatchedTargets {
		for _, target := range result.UnmatchedTargets {
			record := []string{
				"unmatched",
				target.SaleID,
				target.SaleCode,
				installmentField(target.InstallmentNumber),
				target.TransactionID,
				"",
				"",
				target.Reason,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched record: %w", err)
			}
		}
	}
	return nil
}

func installmentField(number *int) string {
	if number == nil {
		return ""
	}
	return strconv.Itoa(*number)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.BatchResult) map[string]interface{} {
	output := map[string]interface{}{
		"totalProcessed":  result.TotalProcessed,
		"matched":         result.Matched,
		"unmatched":       result.Unmatched,
		"details":         result.Details,
		"learningApplied": result.LearningApplied,
		"startedAt":       result.StartedAt,
		"duration":        result.Duration.String(),
	}

	if rg.config.IncludeMatchedTargets && result.MatchedTargets != nil {
		output["matchedTargets"] = result.MatchedTargets
	}
	if rg.config.IncludeUnmatchedTargets && result.UnmatchedTargets != nil {
		output["unmatchedTargets"] = result.UnmatchedTargets
	}
	if rg.config.IncludeErrors && result.Errors != nil {
		output["errors"] = result.Errors
	}
	return output
}

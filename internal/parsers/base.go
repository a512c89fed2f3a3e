// Package parsers imports sales and ledger transactions from CSV files.
//
// The files come from exports of the upstream billing and banking systems,
// so the parsers tolerate the usual real-world variation: optional headers,
// aliased column names, mixed date formats, currency symbols in amounts and
// the odd malformed row. Row-level problems are collected per file and
// reported alongside the parsed records; only structural problems (missing
// file, missing required columns) fail the whole import.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"receivables-reconciler/pkg/errors"
	"receivables-reconciler/pkg/logger"
)

// RowError records one row the parser could not turn into a valid record.
type RowError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d (%s=%q): %s", e.Line, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseConfig holds the CSV-level settings shared by both parsers.
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool

	// MaxRows caps how many data rows one file may contain; 0 disables the
	// cap. Exports beyond the cap are rejected rather than truncated.
	MaxRows int

	// MaxErrors aborts the file once this many row errors accumulate; 0
	// disables the cap.
	MaxErrors int
}

// DefaultParseConfig returns settings that handle typical exports.
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
		MaxRows:          500000,
		MaxErrors:        1000,
	}
}

// baseParser carries the CSV plumbing shared by the sale and transaction
// parsers.
type baseParser struct {
	config *ParseConfig
	log    logger.Logger
}

func newBaseParser(config *ParseConfig, component string) *baseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &baseParser{
		config: config,
		log:    logger.GetGlobalLogger().WithComponent(component),
	}
}

// parseState tracks position and accumulated row errors for one file.
type parseState struct {
	ctx       context.Context
	line      int
	headers   []string
	headerIdx map[string]int
}

func newParseState(ctx context.Context) *parseState {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseState{ctx: ctx, headerIdx: make(map[string]int)}
}

func (ps *parseState) cancelled() bool {
	select {
	case <-ps.ctx.Done():
		return true
	default:
		return false
	}
}

// columnIndex resolves a header name case-insensitively, -1 when absent.
func (ps *parseState) columnIndex(name string) int {
	if idx, ok := ps.headerIdx[name]; ok {
		return idx
	}
	lower := strings.ToLower(name)
	for header, idx := range ps.headerIdx {
		if strings.ToLower(header) == lower {
			return idx
		}
	}
	return -1
}

// openFile opens path and returns a configured CSV reader over it.
func (bp *baseParser) openFile(path string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.log.WithError(err).WithField("path", path).Error("Failed to open import file")
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, 0); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return file, reader, nil
}

// validateEncoding samples the head of the file for invalid UTF-8, the most
// common symptom of Latin-1 exports.
func (bp *baseParser) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan() && line <= 100; line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.FileError(errors.CodeEncodingError, path, nil).
				WithContext("line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

// readHeaders consumes the header row, or installs the expected headers when
// the file carries none, and verifies the required columns are present.
func (bp *baseParser) readHeaders(reader *csv.Reader, state *parseState, path string, required []string) error {
	if !bp.config.HasHeader {
		state.headers = append([]string(nil), required...)
		bp.indexHeaders(state)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeMissingColumn, path, 0, "headers", "", nil).
				WithSuggestion("The file is empty; it needs a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, path, 1, "headers", "", err)
	}
	state.line++

	state.headers = make([]string, len(headers))
	for i, header := range headers {
		state.headers[i] = strings.TrimSpace(header)
	}
	bp.indexHeaders(state)

	var missing []string
	for _, name := range required {
		if state.columnIndex(name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.log.WithFields(logger.Fields{
			"path":    path,
			"missing": missing,
			"found":   state.headers,
		}).Error("Required columns are missing")
		return errors.ParseError(errors.CodeMissingColumn, path, state.line,
			strings.Join(missing, ", "), "", nil).
			WithSuggestion("Ensure the export contains the columns: " + strings.Join(missing, ", "))
	}
	return nil
}

func (bp *baseParser) indexHeaders(state *parseState) {
	state.headerIdx = make(map[string]int, len(state.headers))
	for i, header := range state.headers {
		state.headerIdx[header] = i
	}
}

// readRow returns the next non-empty data row, io.EOF at end of file.
func (bp *baseParser) readRow(reader *csv.Reader, state *parseState) ([]string, error) {
	for {
		if state.cancelled() {
			return nil, state.ctx.Err()
		}

		row, err := reader.Read()
		if err != nil {
			return nil, err
		}
		state.line++

		if bp.config.SkipEmptyRows && emptyRow(row) {
			continue
		}
		return row, nil
	}
}

func emptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// fieldValue returns the trimmed value of the named column, "" when the
// column is absent or the row is short.
func fieldValue(row []string, state *parseState, name string) string {
	idx := state.columnIndex(name)
	if idx == -1 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ParseStats summarizes one file import.
type ParseStats struct {
	TotalLines   int
	RowsParsed   int
	RecordsValid int
	Errors       []*RowError
}

// HasErrors reports whether any row failed.
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

func (ps *ParseStats) addError(line int, field, value, message string, err error) {
	ps.Errors = append(ps.Errors, &RowError{
		Line:    line,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	})
}

// SampleErrors returns up to max row errors for logging.
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// String returns a one-line import summary.
func (ps *ParseStats) String() string {
	return fmt.Sprintf("parsed %d lines, %d rows (%d valid), %d errors",
		ps.TotalLines, ps.RowsParsed, ps.RecordsValid, len(ps.Errors))
}

// checkCaps enforces the row and error caps after each row.
func (bp *baseParser) checkCaps(stats *ParseStats, state *parseState, path string) error {
	if bp.config.MaxRows > 0 && stats.RowsParsed > bp.config.MaxRows {
		return errors.ParseError(errors.CodeInvalidData, path, state.line, "", "", nil).
			WithSuggestion(fmt.Sprintf("The file exceeds the %d-row import cap; split it and retry", bp.config.MaxRows))
	}
	if bp.config.MaxErrors > 0 && len(stats.Errors) > bp.config.MaxErrors {
		return errors.ParseError(errors.CodeInvalidData, path, state.line, "", "", nil).
			WithSuggestion(fmt.Sprintf("More than %d rows failed to parse; the file format is likely wrong", bp.config.MaxErrors))
	}
	return nil
}

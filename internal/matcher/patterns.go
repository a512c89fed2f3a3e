package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PatternDetector recognizes vendor-specific textual conventions in
// transaction descriptions: sale/order reference codes, customer labels,
// installment markers and anticipation markers.
type PatternDetector struct {
	patterns []*vendorPattern
}

type vendorPattern struct {
	spec VendorPatternSpec
	re   *regexp.Regexp
}

// PatternTarget carries the target-side values a detected capture is checked
// against.
type PatternTarget struct {
	SaleCode          string
	CustomerName      string
	InstallmentNumber int // 0 when the target is not an installment
	InstallmentCount  int
}

// InstallmentMarker is a detected "parcela N/M" style marker.
type InstallmentMarker struct {
	Number int
	Count  int
}

// NewPatternDetector compiles the configured pattern list. Patterns are
// applied against normalized text, so expressions should be written in
// lowercase without diacritics expectations beyond what normalization leaves.
func NewPatternDetector(config *ScoringConfig) (*PatternDetector, error) {
	detector := &PatternDetector{}

	for _, spec := range config.VendorPatterns {
		re, err := regexp.Compile(spec.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid vendor pattern %s: %w", spec.Name, err)
		}
		detector.patterns = append(detector.patterns, &vendorPattern{spec: spec, re: re})
	}

	return detector, nil
}

// Score applies the ordered pattern list against text and returns a
// [0, 100] score. A pattern whose captured value matches the target awards
// its full importance; a pattern that is present but captures a different
// value awards 30% of it. The sum is normalized by the summed importance of
// the patterns actually present in the text, so a lone exact reference-code
// match scores 100. Text with no recognizable pattern scores 0.
func (pd *PatternDetector) Score(text string, target PatternTarget) float64 {
	norm := normalizeText(text)
	if norm == "" {
		return 0
	}

	points := 0.0
	detectedWeight := 0.0
	for _, pattern := range pd.patterns {
		match := pattern.re.FindStringSubmatch(norm)
		if match == nil {
			continue
		}

		detectedWeight += pattern.spec.Importance
		if pd.captureMatches(pattern.spec.Kind, match, target) {
			points += 100 * pattern.spec.Importance
		} else {
			points += 30 * pattern.spec.Importance
		}
	}

	if detectedWeight == 0 {
		return 0
	}

	score := points / detectedWeight
	if score > 100 {
		score = 100
	}
	return score
}

// captureMatches checks a pattern's captured value against the target.
// Patterns without a capture group (markers) count as matched by presence.
func (pd *PatternDetector) captureMatches(kind PatternKind, match []string, target PatternTarget) bool {
	switch kind {
	case PatternSaleCode, PatternOrderCode:
		if len(match) < 2 {
			return false
		}
		return codesEqual(match[1], target.SaleCode)

	case PatternCustomer:
		if len(match) < 2 || target.CustomerName == "" {
			return false
		}
		captured := strings.TrimSpace(match[1])
		return ContainsNormalized(target.CustomerName, captured) ||
			ContainsNormalized(captured, target.CustomerName)

	case PatternInstallment:
		if len(match) < 3 || target.InstallmentNumber == 0 {
			return false
		}
		number, errN := strconv.Atoi(match[1])
		count, errC := strconv.Atoi(match[2])
		if errN != nil || errC != nil {
			return false
		}
		if target.InstallmentCount > 0 && count != target.InstallmentCount {
			return false
		}
		return number == target.InstallmentNumber

	case PatternAnticipation:
		// Marker pattern; presence is the match.
		return true

	default:
		return false
	}
}

// codesEqual compares numeric reference codes ignoring leading zeros.
func codesEqual(a, b string) bool {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(normalizeText(b)), "0")
	if a == "" {
		a = "0"
	}
	if b == "" {
		b = "0"
	}
	return a == b
}

// IsAnticipation reports whether the text carries an anticipation marker.
func (pd *PatternDetector) IsAnticipation(text string) bool {
	norm := normalizeText(text)
	for _, pattern := range pd.patterns {
		if pattern.spec.Kind == PatternAnticipation && pattern.re.MatchString(norm) {
			return true
		}
	}
	return false
}

// DetectInstallment extracts a "parcela N/M" marker when present.
func (pd *PatternDetector) DetectInstallment(text string) (InstallmentMarker, bool) {
	norm := normalizeText(text)
	for _, pattern := range pd.patterns {
		if pattern.spec.Kind != PatternInstallment {
			continue
		}
		match := pattern.re.FindStringSubmatch(norm)
		if len(match) < 3 {
			continue
		}
		number, errN := strconv.Atoi(match[1])
		count, errC := strconv.Atoi(match[2])
		if errN != nil || errC != nil || number <= 0 || count <= 0 {
			continue
		}
		return InstallmentMarker{Number: number, Count: count}, true
	}
	return InstallmentMarker{}, false
}

// DetectSaleCode extracts the first sale/order reference code when present.
func (pd *PatternDetector) DetectSaleCode(text string) (string, bool) {
	norm := normalizeText(text)
	for _, pattern := range pd.patterns {
		if pattern.spec.Kind != PatternSaleCode && pattern.spec.Kind != PatternOrderCode {
			continue
		}
		match := pattern.re.FindStringSubmatch(norm)
		if len(match) >= 2 {
			return match[1], true
		}
	}
	return "", false
}

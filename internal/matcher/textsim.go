package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	numberPattern      = regexp.MustCompile(`\d+`)
	nonAlphanumSpace   = regexp.MustCompile(`[^\pL\pN ]+`)
	whitespaceCollapse = regexp.MustCompile(`\s+`)
)

// TextSimilarity compares free-text descriptions from disparate sources.
// Numeric tokens (order codes, sale numbers) carry most of the signal, so
// they are weighted 70/30 against word tokens.
type TextSimilarity struct {
	stopWords map[string]bool
}

// NewTextSimilarity builds a scorer with the configured stop-word list.
func NewTextSimilarity(config *ScoringConfig) *TextSimilarity {
	stopWords := make(map[string]bool, len(config.StopWords))
	for _, word := range config.StopWords {
		stopWords[normalizeText(word)] = true
	}
	return &TextSimilarity{stopWords: stopWords}
}

// normalizeText lowercases, strips diacritics and punctuation, and collapses
// whitespace.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Decompose accented characters and drop the combining marks.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	s = nonAlphanumSpace.ReplaceAllString(s, " ")
	s = whitespaceCollapse.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// numericTokens extracts the distinct embedded numbers of a normalized
// string. Leading zeros are trimmed so "venda 042" matches "venda #42".
func numericTokens(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, match := range numberPattern.FindAllString(s, -1) {
		trimmed := strings.TrimLeft(match, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		tokens[trimmed] = true
	}
	return tokens
}

// wordTokens extracts distinct word tokens longer than two characters,
// excluding stop words and pure numbers.
func (ts *TextSimilarity) wordTokens(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		if len(word) <= 2 {
			continue
		}
		if numberPattern.MatchString(word) && numberPattern.FindString(word) == word {
			continue
		}
		if ts.stopWords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

// overlapRatio computes intersection-over-union of two token sets.
func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Score compares two strings and returns a similarity in [0, 100]. The
// comparison is symmetric. Full containment of one normalized string in the
// other scores 100; otherwise the score blends numeric-token overlap (70%)
// with word-token overlap (30%).
func (ts *TextSimilarity) Score(a, b string) float64 {
	normA := normalizeText(a)
	normB := normalizeText(b)

	if normA == "" || normB == "" {
		return 0
	}

	if strings.Contains(normA, normB) || strings.Contains(normB, normA) {
		return 100
	}

	numbersA := numericTokens(normA)
	numbersB := numericTokens(normB)
	wordsA := ts.wordTokens(normA)
	wordsB := ts.wordTokens(normB)

	numberScore := overlapRatio(numbersA, numbersB)
	wordScore := overlapRatio(wordsA, wordsB)

	// The blend is fixed even when neither side carries a number: a pair
	// without any shared reference code caps out at 30, keeping word-only
	// resemblance from passing for a strong signal.
	return (numberScore*0.7 + wordScore*0.3) * 100
}

// ContainsNormalized reports whether needle occurs in haystack after both are
// normalized. Used for customer-name recurrence counting.
func ContainsNormalized(haystack, needle string) bool {
	normNeedle := normalizeText(needle)
	if normNeedle == "" {
		return false
	}
	return strings.Contains(normalizeText(haystack), normNeedle)
}

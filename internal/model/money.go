package model

import (
	"math"
	"strconv"
	"strings"
)

// AmountsEqual compares two monetary values within AmountTolerance.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) <= AmountTolerance
}

// ParseAmount parses a monetary string as it appears on documents: currency
// symbols and grouping separators are stripped, and both "1.234,56" and
// "1,234.56" styles are accepted.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma > lastDot:
		// European style: dot groups, comma decimal.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NormalizeRate converts a VAT rate to a 0–1 fraction. Values above 1 are
// treated as percentages (23 -> 0.23).
func NormalizeRate(rate float64) float64 {
	if rate > 1 {
		return rate / 100
	}
	return rate
}

// containsFold is a case-insensitive substring check on ASCII-ish input.
func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

package recipient

import (
	"strings"
	"unicode"
)

const (
	DefaultCountryCode = "880"
	DefaultMinLength   = 11
	maxNumberLength    = 15
)

// Normalizer turns free-form phone input into the digits-only form the gateway expects.
type Normalizer struct {
	countryCode string
	minLength   int
}

func NewNormalizer(countryCode string, minLength int) Normalizer {
	countryCode = onlyDigits(countryCode)
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return Normalizer{countryCode: countryCode, minLength: minLength}
}

func (n Normalizer) CountryCode() string { return n.countryCode }

// Normalize never fails. It returns its best effort and whether the result
// passes the minimal length and prefix check.
func (n Normalizer) Normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	explicitCountry := strings.HasPrefix(trimmed, "+")
	digits := onlyDigits(trimmed)
	if digits == "" {
		return "", false
	}

	normalized := digits
	if !explicitCountry && n.countryCode != "" && !strings.HasPrefix(digits, n.countryCode) {
		// A leading zero is the national trunk prefix; spreadsheets also drop it.
		local := strings.TrimLeft(digits, "0")
		if local == "" {
			return digits, false
		}
		normalized = n.countryCode + local
	}

	return normalized, n.valid(normalized, explicitCountry)
}

func (n Normalizer) valid(normalized string, explicitCountry bool) bool {
	if len(normalized) < n.minLength || len(normalized) > maxNumberLength {
		return false
	}
	if !explicitCountry && n.countryCode != "" && !strings.HasPrefix(normalized, n.countryCode) {
		return false
	}
	return true
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitNumbers splits operator input separated by commas, semicolons or newlines.
func SplitNumbers(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})

	numbers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			numbers = append(numbers, trimmed)
		}
	}
	return numbers
}

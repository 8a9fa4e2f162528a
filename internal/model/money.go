package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCents converts decimal string amounts (major units) to cents.
// Commerce platforms return prices as "99.00"; cents are the only unit of record here.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	// math.Round handles both positive and negative numbers correctly
	return int64(math.Round(f * 100))
}

// FormatCents renders minor units as a decimal string for APIs that take major units.
// Integer arithmetic only, so no float drift: 1999 → "19.99", -5 → "-0.05".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// CentsToMajor converts minor units to a float for APIs that require a JSON number
// (e.g. the conversions API "value" field). Never use the result for bookkeeping.
func CentsToMajor(cents int64) float64 {
	return float64(cents) / 100
}

// NormalizeCurrency lower-cases a currency code, falling back to def when empty.
func NormalizeCurrency(currency, def string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		c = strings.ToLower(strings.TrimSpace(def))
	}
	return c
}

package scraper

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Candidate values must fall strictly inside (minPrice, maxPrice).
	minPrice = 0
	maxPrice = 100000

	// Integers above this are treated as cents.
	centsThreshold = 9999
)

var (
	nonPriceChars  = regexp.MustCompile(`[^\d.,]`)
	nonNumberChars = regexp.MustCompile(`[^\d.]`)
	numericPrefix  = regexp.MustCompile(`^(?:\d+(?:\.\d*)?|\.\d+)`)

	// A number optionally led by a currency symbol, e.g. "$1,299.00" or "49.99".
	priceToken = regexp.MustCompile(`[$£€]?\s?[\d.,]+`)
	// A number that must be led by a currency symbol.
	currencyToken = regexp.MustCompile(`[$£€]\s?[\d.,]+`)
)

// ParsePrice turns a free-form fragment like "$1,234.56" or "99,90 €" into a number.
// A comma is the decimal mark only when the text has no dot; otherwise commas are
// thousands separators. Returns false for empty or non-numeric input.
func ParsePrice(text string) (float64, bool) {
	cleaned := strings.TrimSpace(nonPriceChars.ReplaceAllString(text, ""))
	if cleaned == "" {
		return 0, false
	}
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	return parseNumericPrefix(cleaned)
}

// parseNumericPrefix parses the leading decimal number of s, ignoring any tail.
func parseNumericPrefix(s string) (float64, bool) {
	m := numericPrefix.FindString(s)
	if m == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(m, "."))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// tokenNumber reads a regex-captured token the way JSON and selector scans do:
// every character except digits and dots is dropped, commas included.
func tokenNumber(token string) (float64, bool) {
	return parseNumericPrefix(nonNumberChars.ReplaceAllString(token, ""))
}

// inRange reports whether v is a plausible price.
func inRange(v float64) bool {
	return v > minPrice && v < maxPrice
}

// normalizeCents divides suspected cents-encoded integers by 100.
func normalizeCents(v float64) float64 {
	if v > centsThreshold && v == math.Trunc(v) {
		return v / 100
	}
	return v
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// priceKey is the two-decimal grouping key for v.
func priceKey(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// selectorValues extracts every plausible price from element text. Tokens without a
// decimal point above the cents threshold are divided by 100, and values are
// rounded to two decimals.
func selectorValues(text string) []float64 {
	var out []float64
	for _, tok := range priceToken.FindAllString(text, -1) {
		if n, ok := selectorTokenValue(tok); ok {
			out = append(out, n)
		}
	}
	return out
}

// selectorTokenValue applies the selectorValues rules to a single token.
func selectorTokenValue(tok string) (float64, bool) {
	raw := nonNumberChars.ReplaceAllString(tok, "")
	n, ok := parseNumericPrefix(raw)
	if !ok {
		return 0, false
	}
	if !strings.Contains(raw, ".") && n > centsThreshold {
		n = n / 100
	}
	n = round2(n)
	return n, inRange(n)
}

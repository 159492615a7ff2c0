package scraper

import (
	"regexp"
	"sort"
)

// networkJSONPatterns capture price-like keys in JSON response bodies.
var networkJSONPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"priceDisplay"\s*:\s*"?\$?([\d.,]+)`),
	regexp.MustCompile(`"salePrice"\s*:\s*"?\$?([\d.,]+)`),
	regexp.MustCompile(`"price"\s*:\s*"?\$?([\d.,]+)`),
}

// inlineJSONPatterns capture the same keys plus amount objects inside rendered HTML.
var inlineJSONPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"priceDisplay"\s*:\s*"?\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)"salePrice"\s*:\s*"?\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)"price"\s*:\s*"?\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)"price"\s*:\s*\{\s*"amount"\s*:\s*([\d.]+)`),
	regexp.MustCompile(`(?i)"amount"\s*:\s*([\d.]+)\s*(?:,|\})`),
	regexp.MustCompile(`(?i)'priceDisplay'\s*:\s*'?\\?\$?([\d.,]+)`),
}

// jsonHit is a price captured by regex at a byte offset.
type jsonHit struct {
	Value  float64
	Offset int
}

// scanJSONPrices runs every pattern over text. Captured numbers are cents-normalized and
// range-checked; hits come back ordered by offset.
func scanJSONPrices(text string, patterns []*regexp.Regexp) []jsonHit {
	var hits []jsonHit
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			n, ok := tokenNumber(text[m[2]:m[3]])
			if !ok {
				continue
			}
			n = normalizeCents(n)
			if inRange(n) {
				hits = append(hits, jsonHit{Value: n, Offset: m[2]})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Offset < hits[j].Offset })
	return hits
}

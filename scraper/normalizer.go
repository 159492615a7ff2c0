package scraper

import (
	"math"
	"sort"
)

// Normalize corrects cents-vs-dollars scale errors across a candidate set.
// Output has the same length and order as values. Each value is judged on its own
// against the set's median:
//   - above 500, ending in "00", median below 500: divide by 100
//   - above 1000, a multiple of 100, median below 1000: divide by 100
//   - above 1000 while some other value is below 100: divide by 100
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	med := median(values)

	for i, v := range values {
		out[i] = v
		switch {
		case v > 500 && endsInDoubleZero(v) && med < 500:
			out[i] = v / 100
		case v > 1000 && isMultipleOf100(v) && med < 1000:
			out[i] = v / 100
		case v > 1000 && hasOtherBelow(values, i, 100):
			out[i] = v / 100
		}
	}
	return out
}

// median of values; the mean of the two middle values for even lengths.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// endsInDoubleZero checks the integer part's last two digits; fractional values never qualify.
func endsInDoubleZero(v float64) bool {
	return v == math.Trunc(v) && math.Mod(v, 100) == 0
}

func isMultipleOf100(v float64) bool {
	return math.Mod(v, 100) == 0
}

func hasOtherBelow(values []float64, skip int, limit float64) bool {
	for j, o := range values {
		if j != skip && o < limit {
			return true
		}
	}
	return false
}

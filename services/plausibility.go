package services

import (
	"fmt"
	"math"

	"pricewatch/models"
)

// DefaultMaxChangeRatio is used when a guard is built with a non-positive ratio.
const DefaultMaxChangeRatio = 0.7

// PlausibilityGuard protects site history from single-sample extraction errors.
type PlausibilityGuard struct {
	MaxChangeRatio float64
}

func NewPlausibilityGuard(ratio float64) PlausibilityGuard {
	if ratio <= 0 {
		ratio = DefaultMaxChangeRatio
	}
	return PlausibilityGuard{MaxChangeRatio: ratio}
}

// Check downgrades res to out_of_stock when its price moved more than the allowed
// ratio away from previous. Results without a price, and sites without a positive
// previous price, pass through unchanged.
func (g PlausibilityGuard) Check(res models.ExtractionResult, previous *float64) (models.ExtractionResult, bool) {
	if !res.Accepted() || previous == nil || *previous <= 0 {
		return res, true
	}

	old, cur := *previous, *res.Price
	change := math.Abs(cur-old) / old
	if change <= g.MaxChangeRatio {
		return res, true
	}

	msg := fmt.Sprintf("implausible price change %.2f -> %.2f (%.0f%% > %.0f%%)",
		old, cur, change*100, g.MaxChangeRatio*100)
	return models.FailedResult(models.ErrorOutOfStock, msg), false
}

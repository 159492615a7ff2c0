package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pricewatch/models"
)

func ptr(v float64) *float64 { return &v }

func TestPlausibilityGuard(t *testing.T) {
	g := NewPlausibilityGuard(0.7)

	tests := []struct {
		name     string
		res      models.ExtractionResult
		previous *float64
		want     models.ErrorKind
		ok       bool
	}{
		{"first price", models.PriceResult(2), nil, models.ErrorNone, true},
		{"small move", models.PriceResult(18), ptr(20), models.ErrorNone, true},
		{"boundary", models.PriceResult(34), ptr(20), models.ErrorNone, true},
		{"crash", models.PriceResult(2), ptr(20), models.ErrorOutOfStock, false},
		{"spike", models.PriceResult(2000), ptr(20), models.ErrorOutOfStock, false},
		{"zero previous", models.PriceResult(2), ptr(0), models.ErrorNone, true},
		{"failed result", models.FailedResult(models.ErrorNoPriceFound, ""), ptr(20), models.ErrorNoPriceFound, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := g.Check(tt.res, tt.previous)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ErrorKind)
			if !ok {
				assert.Nil(t, got.Price)
				assert.Contains(t, got.Message, "implausible price change")
			}
		})
	}
}

func TestNewPlausibilityGuardDefaultsRatio(t *testing.T) {
	assert.Equal(t, DefaultMaxChangeRatio, NewPlausibilityGuard(0).MaxChangeRatio)
	assert.Equal(t, 0.5, NewPlausibilityGuard(0.5).MaxChangeRatio)
}

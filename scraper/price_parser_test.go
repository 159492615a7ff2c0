package scraper

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.56", 1234.56, true},
		{"99,90", 99.90, true},
		{"$49.99", 49.99, true},
		{"  £ 12 ", 12, true},
		{"Price: €1.099,00", 1.099, true},
		{"1,299", 1.299, true},
		{".99", 0.99, true},
		{"", 0, false},
		{"free", 0, false},
		{",", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParsePrice(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, tc.in)
		}
	}
}

func TestParsePriceIsIdempotent(t *testing.T) {
	for _, in := range []string{"1,234.56", "99,90", "$0.50", "USD 15", "12.345", "7,5"} {
		first, ok := ParsePrice(in)
		if !assert.True(t, ok, in) {
			continue
		}
		second, ok := ParsePrice(strconv.FormatFloat(first, 'f', -1, 64))
		assert.True(t, ok, in)
		assert.Equal(t, first, second, in)
	}
}

func TestNormalizeCents(t *testing.T) {
	assert.Equal(t, 129.99, normalizeCents(12999))
	assert.Equal(t, 9999.0, normalizeCents(9999))
	assert.Equal(t, 12999.5, normalizeCents(12999.5))
}

func TestSelectorValues(t *testing.T) {
	assert.Equal(t, []float64{49.99, 59.99}, selectorValues("Now $49.99 was $59.99"))
	assert.Equal(t, []float64{129.99}, selectorValues("12999"))
	assert.Equal(t, []float64{1234.5}, selectorValues("$1,234.50"))
	assert.Empty(t, selectorValues("Add to cart"))
}

func TestPriceKeyRoundsToCents(t *testing.T) {
	assert.Equal(t, "49.99", priceKey(49.9899999))
	assert.Equal(t, "45.00", priceKey(45))
	assert.Equal(t, 10.01, round2(10.005))
}

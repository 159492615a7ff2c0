package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredDataPrices(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  []float64
	}{
		{
			name:  "offer object",
			block: `{"@type":"Product","name":"Kettle","offers":{"@type":"Offer","price":"49.99","priceCurrency":"USD"}}`,
			want:  []float64{49.99},
		},
		{
			name:  "offers array with numbers",
			block: `{"@type":"Product","offers":[{"price":19.5},{"price":21}]}`,
			want:  []float64{19.5, 21},
		},
		{
			name:  "price specification",
			block: `{"offers":{"priceSpecification":{"price":"1,299.00"}}}`,
			want:  []float64{1299},
		},
		{
			name:  "aggregate offer falls back to lowPrice",
			block: `{"offers":{"@type":"AggregateOffer","lowPrice":"12.00","highPrice":"30.00"}}`,
			want:  []float64{12},
		},
		{
			name:  "graph",
			block: `{"@graph":[{"@type":"WebPage"},{"@type":"Product","offers":{"price":"8.25"}}]}`,
			want:  []float64{8.25},
		},
		{
			name:  "concatenated objects",
			block: `{"offers":{"price":"5.00"}}{"offers":{"price":"6.00"}}`,
			want:  []float64{5, 6},
		},
		{
			name:  "concatenated with trailing garbage",
			block: `{"offers":{"price":"5.00"}}{"offers":{"price":"6.00"}};`,
			want:  []float64{5, 6},
		},
		{
			name:  "out of range discarded",
			block: `{"offers":{"price":"0"}}`,
			want:  nil,
		},
		{
			name:  "malformed",
			block: `{"offers":`,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StructuredDataPrices(tt.block))
		})
	}
}

func TestLDJSONBlocksFromHTML(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"offers":{"price":"3.10"}}</script>
		<script type='application/ld+json'>  </script>
		<script type="text/javascript">var x = 1;</script>
	</head></html>`

	blocks := ldJSONBlocksFromHTML(html)
	assert.Equal(t, []string{`{"offers":{"price":"3.10"}}`}, blocks)
}

package scraper

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricewatch/models"
)

// layoutPage adds a fake layout to docPage: elements carrying data-x/data-y get a
// 100x20 box at that position. Selectors listed in hiddenFor stay unmatched for the
// given number of queries.
type layoutPage struct {
	*docPage
	queries   map[string]int
	hiddenFor map[string]int
}

func newLayoutPage(t *testing.T, html string, network ...string) *layoutPage {
	t.Helper()
	d, err := newDocPage(html, network...)
	require.NoError(t, err)
	return &layoutPage{docPage: d, queries: make(map[string]int), hiddenFor: make(map[string]int)}
}

func (p *layoutPage) Query(selector string) ([]Node, error) {
	p.queries[selector]++
	if p.queries[selector] <= p.hiddenFor[selector] {
		return nil, nil
	}
	nodes, err := p.docPage.Query(selector)
	for i := range nodes {
		y, err := strconv.ParseFloat(nodes[i].Attr("data-y"), 64)
		if err != nil {
			continue
		}
		x, _ := strconv.ParseFloat(nodes[i].Attr("data-x"), 64)
		nodes[i].Box = Box{X: x, Y: y, Width: 100, Height: 20}
	}
	return nodes, err
}

func testPipeline() *pipeline {
	opts := DefaultOptions()
	opts.SelectorRetry = time.Millisecond
	opts.StructuredDataWait = 0
	opts.VisibleWait = 0
	return newPipeline(opts, zap.NewNop(), nil)
}

func runOn(t *testing.T, p Page, in extraction) models.ExtractionResult {
	t.Helper()
	if in.URL == "" {
		in.URL = "https://shop.example/p/1"
	}
	return testPipeline().run(context.Background(), p, in)
}

func TestPipelineCustomSelectorHasAbsolutePriority(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"offers":{"price":"99.99"}}</script>
		<script>window.state = {"price": 99.99, "salePrice": 99.99}</script>
	</head><body>
		<span class="price">$99.99</span>
		<div id="deal">Now $42.50 was $60.00</div>
	</body></html>`
	p := newLayoutPage(t, html, `{"price": 99.99}`)

	res := runOn(t, p, extraction{Selector: "#missing, #deal"})

	require.True(t, res.Accepted())
	assert.Equal(t, 42.5, *res.Price)
	assert.Equal(t, 2, p.queries["#missing"], "missing selector is retried once")
}

func TestPipelineCustomSelectorRetryFindsLateElement(t *testing.T) {
	p := newLayoutPage(t, `<html><body><b id="late">£12.75</b></body></html>`)
	p.hiddenFor["#late"] = 1

	res := runOn(t, p, extraction{Selector: "#late"})

	require.True(t, res.Accepted())
	assert.Equal(t, 12.75, *res.Price)
}

func TestPipelineCustomSelectorMissFallsThrough(t *testing.T) {
	p := newLayoutPage(t, `<html><body><span class="price">$18.40</span></body></html>`)

	res := runOn(t, p, extraction{Selector: "#nope"})

	require.True(t, res.Accepted())
	assert.Equal(t, 18.4, *res.Price)
}

func TestPipelineJSONLockOutranksSelector(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"Product","offers":{"@type":"Offer","price":"129.00"}}</script>
		<script>window.dataLayer = {"price":129}</script>
	</head><body><span class="price">$99.00</span></body></html>`

	res := runOn(t, newLayoutPage(t, html), extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 129.0, *res.Price)
	assert.Empty(t, res.Message)
}

func TestPipelineStockTextDeferred(t *testing.T) {
	p := newLayoutPage(t, `<html><body><p>Out of stock at your store</p><span class="price">$49.99</span></body></html>`)
	res := runOn(t, p, extraction{})
	require.True(t, res.Accepted(), "a found price wins over stock text")
	assert.Equal(t, 49.99, *res.Price)

	p = newLayoutPage(t, `<html><body><h1>Kettle</h1><p>Sold out</p></body></html>`)
	res = runOn(t, p, extraction{})
	assert.Nil(t, res.Price)
	assert.Equal(t, models.ErrorOutOfStock, res.ErrorKind)
}

func TestPipelineNoPrice(t *testing.T) {
	res := runOn(t, newLayoutPage(t, `<html><body><h1>Kettle</h1></body></html>`), extraction{})
	assert.Nil(t, res.Price)
	assert.Equal(t, models.ErrorNoPriceFound, res.ErrorKind)
}

func TestPipelineNavigationFailure(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")

	res := runOn(t, newLayoutPage(t, `<html><body></body></html>`), extraction{NavErr: navErr})
	assert.Equal(t, models.ErrorNavigationError, res.ErrorKind)
	assert.Contains(t, res.Message, "ERR_NAME_NOT_RESOLVED")

	res = runOn(t, newLayoutPage(t, `<html><body><span class="price">$7.25</span></body></html>`), extraction{NavErr: navErr})
	require.True(t, res.Accepted(), "partial page still yields a price")
	assert.Equal(t, 7.25, *res.Price)
	assert.Contains(t, res.Message, "navigation")
}

func TestPipelineSplitPriceReassembly(t *testing.T) {
	html := `<html><body><div class="price-wrapper"><span>$</span><span>49</span><span>.</span><span>99</span></div></body></html>`

	res := runOn(t, newLayoutPage(t, html), extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 49.99, *res.Price)
}

func TestPipelineVisibleScanPrefersPriceNearCart(t *testing.T) {
	const promos = `
		<div class="promo-price" data-x="0" data-y="2000">$19.99</div>
		<div class="promo-price" data-x="0" data-y="2100">$19.99</div>
		<div class="promo-price" data-x="0" data-y="2200">$19.99</div>`
	const product = `
		<span class="product-price-now" data-x="0" data-y="100">$24.99</span>
		<span class="sale-price" data-x="0" data-y="120">$24.99</span>`
	const cart = `<button id="add-to-cart-button" data-x="0" data-y="140">Add to cart</button>`

	res := runOn(t, newLayoutPage(t, "<html><body>"+promos+product+cart+"</body></html>"), extraction{VisibleScan: true})
	require.True(t, res.Accepted())
	assert.Equal(t, 24.99, *res.Price)

	res = runOn(t, newLayoutPage(t, "<html><body>"+promos+product+"</body></html>"), extraction{VisibleScan: true})
	require.True(t, res.Accepted())
	assert.Equal(t, 19.99, *res.Price, "without an anchor frequency decides")
}

func TestPipelineNetworkJSON(t *testing.T) {
	p := newLayoutPage(t, `<html><body><h1>Kettle</h1></body></html>`, `{"data":{"salePrice":"15.49"}}`)

	res := runOn(t, p, extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 15.49, *res.Price)
}

func TestPipelineFulltextSkipsPromotions(t *testing.T) {
	p := newLayoutPage(t, `<html><body><p>Only $12.99 today. Save $3 now</p></body></html>`)

	res := runOn(t, p, extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 12.99, *res.Price)
}

func TestPipelineKeepsPriceAboveDiscountLine(t *testing.T) {
	p := newLayoutPage(t, "<html><body><p>$49.99</p>\n<p>Save $10</p></body></html>")

	res := runOn(t, p, extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 49.99, *res.Price)
}

func TestPipelineLoneInlineJSONValueDoesNotLock(t *testing.T) {
	html := `<html><head><script>{"shipping":{"amount":5}}</script></head>
		<body><span class="price">$49.99</span></body></html>`

	res := runOn(t, newLayoutPage(t, html), extraction{})

	require.True(t, res.Accepted())
	assert.Equal(t, 49.99, *res.Price)
}

func TestPipelineDomainSelectorTable(t *testing.T) {
	html := `<html><body><span class="price">$10.00</span><div class="pdp-amount">$12.00</div></body></html>`

	res := runOn(t, newLayoutPage(t, html), extraction{PriceSelectors: []string{".pdp-amount"}})
	require.True(t, res.Accepted())
	assert.Equal(t, 12.0, *res.Price)

	res = runOn(t, newLayoutPage(t, html), extraction{})
	require.True(t, res.Accepted())
	assert.Equal(t, 10.0, *res.Price)
}

func TestPipelineNotesBotWall(t *testing.T) {
	p := newLayoutPage(t, `<html><head><title>Access Denied</title></head><body><span class="price">$5.00</span></body></html>`)

	res := runOn(t, p, extraction{})

	require.True(t, res.Accepted())
	assert.Contains(t, res.Message, "bot wall")
}

func TestPageTitleFallbacks(t *testing.T) {
	p := newLayoutPage(t, `<html><head><title>Kettle 1.7L | Shop</title></head><body></body></html>`)
	assert.Equal(t, "Kettle 1.7L | Shop", pageTitle(p))

	p = newLayoutPage(t, `<html><head><title></title><meta property="og:title" content="Steel Kettle"></head><body></body></html>`)
	assert.Equal(t, "Steel Kettle", pageTitle(p))

	p = newLayoutPage(t, `<html><head></head><body><h1 itemprop="name">Kettle Pro</h1></body></html>`)
	assert.Equal(t, "Kettle Pro", pageTitle(p))

	p = newLayoutPage(t, `<html><head><title>Hi</title></head><body></body></html>`)
	assert.Empty(t, pageTitle(p))
}

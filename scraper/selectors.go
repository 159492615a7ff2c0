package scraper

// GenericPriceSelectors is the ordered fallback list for common e-commerce markup.
var GenericPriceSelectors = []string{
	".price",
	"[itemprop='price']",
	".product-price",
	"span[class*='price']",
	".price__value",
	".price-wrapper .price",
	"span[data-price-type='current'] .price",
	"span[data-price-type='finalPrice'] .price",
	".price-item.price-item--regular",
	".money",
	".product-price.leading-6.text-2xl.tracking-wide.font-medium",
	".price__value.price__value--special",
	".product-page-price.product-main-price",
	".divPriceNormal",
	".sprice",
	".a-price-whole",
}

// metaPriceSelectors hold Open Graph / product meta prices in their content attribute.
var metaPriceSelectors = []string{
	"meta[property='og:price:amount']",
	"meta[property='product:price:amount']",
}

// visiblePriceSelectors is the broad net cast by the visible-DOM proximity scan.
var visiblePriceSelectors = []string{
	"[class*='price']",
	"[class*='Price']",
	"[id*='price']",
	"[data-price]",
	"[itemprop='price']",
	"[data-testid*='price']",
	"[aria-label*='rice']",
	"[title*='rice']",
	"meta[property='og:price:amount']",
	"meta[property='product:price:amount']",
	"meta[name='twitter:data1']",
}

// addToCartSelectors locate the primary purchase button.
var addToCartSelectors = []string{
	"#add-to-cart-button",
	"#addToCart",
	"[name='add-to-cart']",
	"[data-testid*='add-to-cart']",
	"button[class*='add-to-cart']",
	"button[class*='addToCart']",
	"form[action*='cart'] button[type='submit']",
	"button",
}

// titleSelectors are tried when the document title is missing or too short.
var titleSelectors = []string{
	"h1.product-title",
	"h1[itemprop='name']",
	"h1[data-testid='product-name']",
	"meta[property='og:title']",
}

// structuredDataSelector finds JSON-LD blocks.
const structuredDataSelector = "script[type='application/ld+json']"

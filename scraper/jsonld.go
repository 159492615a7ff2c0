package scraper

import (
	"encoding/json"
	"io"
	"regexp"
	"sort"
	"strings"
)

var (
	ldJSONScript   = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	objectBoundary = regexp.MustCompile(`\}\s*\{`)
)

// ldJSONBlocksFromHTML is the raw-source fallback when the DOM query finds nothing.
func ldJSONBlocksFromHTML(html string) []string {
	var out []string
	for _, m := range ldJSONScript.FindAllStringSubmatch(html, -1) {
		if b := strings.TrimSpace(m[1]); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// StructuredDataPrices parses one JSON-LD block and returns every price it holds,
// in document order.
func StructuredDataPrices(block string) []float64 {
	var out []float64
	for _, doc := range decodeLDBlock(block) {
		walkPrices(doc, &out)
	}
	return out
}

// decodeLDBlock decodes a block that may hold several concatenated objects. Streams
// the decoder can't read are split on "}{" boundaries and parsed piece by piece.
func decodeLDBlock(block string) []interface{} {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil
	}

	var docs []interface{}
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	for {
		var v interface{}
		err := dec.Decode(&v)
		if err == io.EOF {
			return docs
		}
		if err != nil {
			break
		}
		docs = append(docs, v)
	}

	docs = docs[:0]
	parts := objectBoundary.Split(block, -1)
	for i, p := range parts {
		if i > 0 {
			p = "{" + p
		}
		if i < len(parts)-1 {
			p += "}"
		}
		dec := json.NewDecoder(strings.NewReader(p))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err == nil {
			docs = append(docs, v)
		}
	}
	return docs
}

// walkPrices collects "price" fields anywhere in the graph, including those nested in
// priceSpecification. Offer objects without a price contribute their lowPrice.
func walkPrices(v interface{}, out *[]float64) {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			walkPrices(e, out)
		}
	case map[string]interface{}:
		if p, ok := t["price"]; ok {
			addLDPrice(p, out)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch k {
			case "price":
			case "offers":
				walkOffers(t[k], out)
			default:
				walkPrices(t[k], out)
			}
		}
	}
}

func walkOffers(v interface{}, out *[]float64) {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			walkOffers(e, out)
		}
	case map[string]interface{}:
		before := len(*out)
		walkPrices(t, out)
		if len(*out) == before {
			if lp, ok := t["lowPrice"]; ok {
				addLDPrice(lp, out)
			}
		}
	}
}

func addLDPrice(v interface{}, out *[]float64) {
	var (
		n  float64
		ok bool
	)
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		n, ok = f, err == nil
	case string:
		n, ok = ParsePrice(t)
	case float64:
		n, ok = t, true
	}
	if ok && inRange(n) {
		*out = append(*out, n)
	}
}

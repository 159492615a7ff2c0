package scraper

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var spanPriceChars = regexp.MustCompile(`[\d,$.]`)

// docPage serves a parsed HTML snapshot through the Page interface. A snapshot has
// no layout, so every Box is zero and waits never block.
type docPage struct {
	doc  *goquery.Document
	html string

	mu      sync.Mutex
	network []string
}

func newDocPage(html string, network ...string) (*docPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &docPage{doc: doc, html: html, network: network}, nil
}

func (d *docPage) HTML() (string, error) { return d.html, nil }

func (d *docPage) BodyText() (string, error) {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text(), nil
}

func (d *docPage) Title() (string, error) {
	return strings.TrimSpace(d.doc.Find("title").First().Text()), nil
}

// Query never fails; goquery treats an invalid selector as matching nothing.
func (d *docPage) Query(selector string) ([]Node, error) {
	var nodes []Node
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode(s))
	})
	return nodes, nil
}

func (d *docPage) WaitFor(selector string, _ time.Duration) bool {
	nodes, err := d.Query(selector)
	return err == nil && len(nodes) > 0
}

func (d *docPage) WaitForText(pattern *regexp.Regexp, _ time.Duration) bool {
	text, _ := d.BodyText()
	return pattern.MatchString(text)
}

func (d *docPage) SpanText(selector string) (string, error) {
	var parts []string
	d.doc.Find(selector).First().Find("span").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); spanPriceChars.MatchString(t) {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, ""), nil
}

func (d *docPage) NetworkJSON() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.network
	d.network = nil
	return out
}

func selectionNode(s *goquery.Selection) Node {
	n := Node{Text: strings.TrimSpace(s.Text()), Attrs: make(map[string]string)}
	if len(s.Nodes) > 0 {
		for _, a := range s.Nodes[0].Attr {
			n.Attrs[a.Key] = a.Val
		}
	}
	return n
}

package scraper

import (
	"regexp"
	"time"
)

// Box is an element's layout rectangle in CSS pixels. A zero box means the element
// is not rendered.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Visible reports whether the element occupies any space.
func (b Box) Visible() bool {
	return b.Width > 0 && b.Height > 0
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Node is a snapshot of one matched element.
type Node struct {
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
	Box   Box               `json:"box"`
}

// Attr returns the named attribute or "".
func (n Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// Page is the rendered document as the extraction pipeline sees it. The rod adapter
// implements it against a live browser tab.
type Page interface {
	// HTML returns the serialized document.
	HTML() (string, error)
	// BodyText returns the rendered text of the body.
	BodyText() (string, error)
	Title() (string, error)
	// Query returns every element matching selector in document order.
	Query(selector string) ([]Node, error)
	// WaitFor polls until selector matches or timeout elapses.
	WaitFor(selector string, timeout time.Duration) bool
	// WaitForText polls the body text until pattern matches or timeout elapses.
	WaitForText(pattern *regexp.Regexp, timeout time.Duration) bool
	// SpanText concatenates the text of the digit-bearing spans inside the first
	// element matching selector.
	SpanText(selector string) (string, error)
	// NetworkJSON drains the JSON response bodies captured since the last call.
	NetworkJSON() []string
}

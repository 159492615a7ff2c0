package scraper

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const pollInterval = 250 * time.Millisecond

const queryJS = `(sel) => Array.from(document.querySelectorAll(sel)).map(el => {
	const r = el.getBoundingClientRect();
	const attrs = {};
	for (const a of el.attributes) attrs[a.name] = a.value;
	return {
		text: (el.innerText || el.textContent || "").trim(),
		attrs: attrs,
		box: {x: r.x + window.scrollX, y: r.y + window.scrollY, width: r.width, height: r.height}
	};
})`

const spanTextJS = `(sel) => {
	const p = document.querySelector(sel);
	if (!p) return "";
	return Array.from(p.querySelectorAll("span"))
		.map(s => (s.textContent || "").trim())
		.filter(t => /[\d,$.]/.test(t))
		.join("");
}`

// rodPage adapts a live rod tab to Page and captures JSON responses while the
// page loads.
type rodPage struct {
	page *rod.Page
	log  *zap.Logger

	mu      sync.Mutex
	jsonIDs map[proto.NetworkRequestID]bool
	bodies  []string
}

func newRodPage(page *rod.Page, log *zap.Logger) *rodPage {
	return &rodPage{page: page, log: log, jsonIDs: make(map[proto.NetworkRequestID]bool)}
}

// captureJSON starts recording JSON response bodies. It must run before navigation
// and stops when the page context ends.
func (r *rodPage) captureJSON() {
	if err := (proto.NetworkEnable{}).Call(r.page); err != nil {
		r.log.Debug("network domain unavailable", zap.Error(err))
		return
	}
	wait := r.page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || !strings.Contains(strings.ToLower(e.Response.MIMEType), "json") {
				return
			}
			r.mu.Lock()
			r.jsonIDs[e.RequestID] = true
			r.mu.Unlock()
		},
		func(e *proto.NetworkLoadingFinished) {
			r.mu.Lock()
			ok := r.jsonIDs[e.RequestID]
			delete(r.jsonIDs, e.RequestID)
			r.mu.Unlock()
			if ok {
				go r.readBody(e.RequestID)
			}
		},
	)
	go wait()
}

func (r *rodPage) readBody(id proto.NetworkRequestID) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(r.page)
	if err != nil {
		r.log.Debug("response body unavailable", zap.String("request_id", string(id)), zap.Error(err))
		return
	}
	body := res.Body
	if res.Base64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return
		}
		body = string(raw)
	}
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.mu.Unlock()
}

func (r *rodPage) NetworkJSON() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.bodies
	r.bodies = nil
	return out
}

func (r *rodPage) HTML() (string, error) {
	return r.page.HTML()
}

func (r *rodPage) BodyText() (string, error) {
	var s string
	err := r.eval(&s, `() => document.body ? (document.body.innerText || "") : ""`)
	return s, err
}

func (r *rodPage) Title() (string, error) {
	var s string
	err := r.eval(&s, `() => document.title || ""`)
	return strings.TrimSpace(s), err
}

func (r *rodPage) Query(selector string) ([]Node, error) {
	var nodes []Node
	if err := r.eval(&nodes, queryJS, selector); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return nodes, nil
}

func (r *rodPage) WaitFor(selector string, timeout time.Duration) bool {
	if timeout <= 0 {
		has, _, err := r.page.Has(selector)
		return err == nil && has
	}
	p := r.page.Timeout(timeout)
	defer p.CancelTimeout()
	_, err := p.Element(selector)
	return err == nil
}

func (r *rodPage) WaitForText(pattern *regexp.Regexp, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if text, err := r.BodyText(); err == nil && pattern.MatchString(text) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if !sleepCtx(r.page.GetContext(), pollInterval) {
			return false
		}
	}
}

func (r *rodPage) SpanText(selector string) (string, error) {
	var s string
	err := r.eval(&s, spanTextJS, selector)
	return s, err
}

// eval runs js with args and decodes its JSON result into out.
func (r *rodPage) eval(out interface{}, js string, args ...interface{}) error {
	res, err := r.page.Eval(js, args...)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

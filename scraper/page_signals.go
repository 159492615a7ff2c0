package scraper

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// stockDepletionKeywords mark a product as unavailable. Matched case-insensitively
// against visible page text.
var stockDepletionKeywords = []string{
	"out of stock",
	"sold out",
	"unavailable",
	"no longer available",
	"temporarily unavailable",
	"temporarily out of stock",
}

// promoLead matches wording before a price that marks it as a discount, installment
// or fee rather than the item price.
var promoLead = regexp.MustCompile(`(?i)\b(save|saving|savings|discount|coupon|afterpay|zip|klarna|shipping|delivery)\b`)

// promoTrail matches a suffix attached directly to a price, as in "$10 off" or
// "$8.33/mo".
var promoTrail = regexp.MustCompile(`(?i)^\s?(/\s*(mo|month|wk|week)\b|(per|a|each)\s+(month|mo|week|wk)\b|monthly\b|weekly\b|off\b)`)

// DetectStockDepletion reports whether text contains a stock-depletion phrase.
func DetectStockDepletion(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range stockDepletionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BotDetector recognizes bot walls and CAPTCHA interstitials
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)please verify you are (a )?human`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)unusual traffic`),
			regexp.MustCompile(`(?i)pardon our interruption`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bcaptcha\b`),
			regexp.MustCompile(`(?i)recaptcha`),
			regexp.MustCompile(`(?i)hcaptcha`),
			regexp.MustCompile(`(?i)cf-turnstile`),
			regexp.MustCompile(`(?i)press (and|&) hold`),
		},
	}
}

// BotWall is the verdict for one page
type BotWall struct {
	Detected bool
	Captcha  bool
	Score    float64
	Reasons  []string
}

// Reason joins the matched patterns for logging.
func (b BotWall) Reason() string {
	return strings.Join(b.Reasons, "; ")
}

// Detect scores page text and title. Short pages with any hit score higher since
// real product pages are long.
func (bd *BotDetector) Detect(text, title string) BotWall {
	content := text + " " + title
	var w BotWall

	for _, p := range bd.botPatterns {
		if p.MatchString(content) {
			w.Score += 0.3
			w.Reasons = append(w.Reasons, p.String())
		}
	}
	for _, p := range bd.captchaPatterns {
		if p.MatchString(content) {
			w.Score += 0.5
			w.Captcha = true
			w.Reasons = append(w.Reasons, "captcha: "+p.String())
		}
	}
	if w.Score > 0 && len(content) < 1000 {
		w.Score += 0.2
		w.Reasons = append(w.Reasons, "short page")
	}
	if w.Score > 1 {
		w.Score = 1
	}
	w.Detected = w.Score > 0.3
	return w
}

// promoWindowBefore is how far back a price match is checked for promotional wording.
const promoWindowBefore = 16

// promoContext reports whether the match text[start:end] is promotional, as in
// "Save $10" or "$20/month". The leading window stops at the previous line or
// currency symbol; trailing wording counts only when attached to the number.
func promoContext(text string, start, end int) bool {
	lead := text[max(0, start-promoWindowBefore):start]
	if i := strings.LastIndexAny(lead, "\n$£€"); i >= 0 {
		_, size := utf8.DecodeRuneInString(lead[i:])
		lead = lead[i+size:]
	}
	return promoLead.MatchString(lead) || promoTrail.MatchString(text[end:])
}

package models

// ErrorKind classifies why an extraction produced no usable price
type ErrorKind string

const (
	ErrorNone            ErrorKind = "none"
	ErrorOutOfStock      ErrorKind = "out_of_stock"
	ErrorNoPriceFound    ErrorKind = "no_price_found"
	ErrorBadStatus       ErrorKind = "bad_status"
	ErrorNavigationError ErrorKind = "navigation_error"
	ErrorUnknown         ErrorKind = "unknown"
)

// ExtractionResult is the only output of both fetchers.
// Price is set only when ErrorKind is ErrorNone.
type ExtractionResult struct {
	Price     *float64  `json:"price"`
	ErrorKind ErrorKind `json:"errorKind"`
	Message   string    `json:"message,omitempty"`
}

// PriceResult builds a successful result
func PriceResult(price float64) ExtractionResult {
	p := price
	return ExtractionResult{Price: &p, ErrorKind: ErrorNone}
}

// FailedResult builds a priceless result of the given kind
func FailedResult(kind ErrorKind, message string) ExtractionResult {
	return ExtractionResult{ErrorKind: kind, Message: message}
}

// Accepted reports whether the caller may fold this result into history
func (r ExtractionResult) Accepted() bool {
	return r.Price != nil && r.ErrorKind == ErrorNone
}

// Value returns the price or 0
func (r ExtractionResult) Value() float64 {
	if r.Price == nil {
		return 0
	}
	return *r.Price
}

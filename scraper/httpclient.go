package scraper

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// HTTPClient abstracts GET requests so fetchers can be tested without a network.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// RestyClient adapts resty.Client to HTTPClient.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a RestyClient with the given timeout. Redirects are followed.
func NewRestyClient(timeout time.Duration) *RestyClient {
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &RestyClient{client: c}
}

// Get performs a GET with the given headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponse{resp: resp}, nil
}

type restyResponse struct {
	resp *resty.Response
}

func (r *restyResponse) Body() []byte    { return r.resp.Body() }
func (r *restyResponse) StatusCode() int { return r.resp.StatusCode() }

package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricewatch/models"
)

type stubResponse struct {
	status int
	body   string
}

func (r stubResponse) Body() []byte    { return []byte(r.body) }
func (r stubResponse) StatusCode() int { return r.status }

type stubClient struct {
	resp    stubResponse
	err     error
	headers map[string]string
}

func (c *stubClient) Get(_ context.Context, _ string, headers map[string]string) (Response, error) {
	c.headers = headers
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

func staticWith(body string) (*StaticFetcher, *stubClient) {
	c := &stubClient{resp: stubResponse{status: http.StatusOK, body: body}}
	return NewStaticFetcher(c, time.Second, zap.NewNop()), c
}

func TestStaticFetchGenericSelector(t *testing.T) {
	f, c := staticWith(`<html><body><h1>Kettle</h1><div class="price">$1,049.95</div></body></html>`)
	res := f.Fetch(context.Background(), "https://www.shop.example/p/kettle", "")

	require.True(t, res.Accepted())
	assert.Equal(t, 1049.95, *res.Price)
	assert.Equal(t, "https://shop.example/", c.headers["Referer"])
	assert.Equal(t, "en-US,en;q=0.9", c.headers["Accept-Language"])
}

func TestStaticFetchStockDepletionShortCircuits(t *testing.T) {
	f, _ := staticWith(`<html><body><span class="price">$49.99</span><p>Temporarily out of stock</p></body></html>`)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "")

	assert.Nil(t, res.Price)
	assert.Equal(t, models.ErrorOutOfStock, res.ErrorKind)
}

func TestStaticFetchIgnoresStockWordsInScripts(t *testing.T) {
	f, _ := staticWith(`<html><body><script>var labels = {oos: "Out of stock"};</script><span class="price">$49.99</span></body></html>`)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "")

	require.True(t, res.Accepted())
	assert.Equal(t, 49.99, *res.Price)
}

func TestStaticFetchCustomSelectorList(t *testing.T) {
	body := `<html><body>
		<span class="price">$10.00</span>
		<div id="main"><b class="now">€ 24,50</b></div>
	</body></html>`
	f, _ := staticWith(body)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "#missing, #main .now")

	require.True(t, res.Accepted())
	assert.Equal(t, 24.5, *res.Price)
}

func TestStaticFetchMetaAndCurrencyFallbacks(t *testing.T) {
	f, _ := staticWith(`<html><head><meta property="og:price:amount" content="17.25"></head><body>Hello</body></html>`)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "")
	require.True(t, res.Accepted())
	assert.Equal(t, 17.25, *res.Price)

	f, _ = staticWith(`<html><body><p>Only £8.40 today</p></body></html>`)
	res = f.Fetch(context.Background(), "https://shop.example/p/2", "")
	require.True(t, res.Accepted())
	assert.Equal(t, 8.4, *res.Price)
}

func TestStaticFetchNoPrice(t *testing.T) {
	f, _ := staticWith(`<html><body><p>Nothing to see</p></body></html>`)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "")
	assert.Equal(t, models.ErrorNoPriceFound, res.ErrorKind)
	assert.Nil(t, res.Price)
}

func TestStaticFetchTransportErrors(t *testing.T) {
	c := &stubClient{err: errors.New("connection refused")}
	f := NewStaticFetcher(c, time.Second, nil)
	res := f.Fetch(context.Background(), "https://shop.example/p/1", "")
	assert.Equal(t, models.ErrorNavigationError, res.ErrorKind)
	assert.Contains(t, res.Message, "connection refused")
}

func TestStaticFetchBadStatusOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		assert.Equal(t, staticUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><body><span itemprop="price" content="12.00"></span></body></html>`))
	}))
	defer srv.Close()

	f := NewStaticFetcher(NewRestyClient(2*time.Second), 2*time.Second, nil)

	res := f.Fetch(context.Background(), srv.URL+"/gone", "")
	assert.Equal(t, models.ErrorBadStatus, res.ErrorKind)
	assert.Equal(t, "HTTP 403", res.Message)

	res = f.Fetch(context.Background(), srv.URL+"/ok", "")
	require.True(t, res.Accepted())
	assert.Equal(t, 12.0, *res.Price)
}

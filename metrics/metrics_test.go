package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/metrics"
)

func TestObserveFetch(t *testing.T) {
	m := metrics.New()
	m.ObserveFetch("simple", "none", 150*time.Millisecond)
	m.ObserveFetch("simple", "none", time.Second)
	m.ObserveFetch("puppeteer", "out_of_stock", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("simple", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("puppeteer", "out_of_stock")))
}

func TestCountersAndGauge(t *testing.T) {
	m := metrics.New()
	m.AddCandidates("inline_json", 3)
	m.AddCandidates("inline_json", 0)
	m.IncPlausibilityRejected()
	m.IncRefreshRun("refresh_all", "completed")
	m.SetQueueDepth(4)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("inline_json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlausibilityRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRuns.WithLabelValues("refresh_all", "completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveFetch("simple", "none", time.Second)
	m.AddCandidates("selector", 1)
	m.IncPlausibilityRejected()
	m.IncRefreshRun("refresh_item", "failed")
	m.SetQueueDepth(1)
}

func TestHandlerServesCollectors(t *testing.T) {
	m := metrics.New()
	m.IncPlausibilityRejected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pricewatch_plausibility_rejected_total 1"))
}

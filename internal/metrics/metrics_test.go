package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearchRequest("ok")
		m.ObserveResolution(true, 3)
		m.ObserveAlert("lost")
		m.ObserveDispatch(false)
		m.ObserveBatch(time.Now(), time.Now())
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveSearchRequest("ok")
	m.ObserveSearchRequest("ok")
	m.ObserveSearchRequest("rate_limited")
	m.ObserveResolution(true, 2)
	m.ObserveResolution(false, 10)

	assert.InDelta(t, 2, testutil.ToFloat64(m.searchRequests.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.searchRequests.WithLabelValues("rate_limited")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resolutions.WithLabelValues("found")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.pagesScanned), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveAlert("rank-improved")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ranktracker_alerts_total{kind="rank-improved"} 1`))
}

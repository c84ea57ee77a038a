package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("journal")

	m.ChildTrade("created")
	m.ChildTrade("created")
	m.ChildTrade("skipped")
	m.Settlement("win")
	m.StoreRetry("settle")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.childTrades.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.childTrades.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeRetries.WithLabelValues("settle")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ChildTrade("created")
		m.UnitFailure("fanout")
		m.Settlement("loss")
		m.StoreRetry("op")
		m.RolloverDashboard("ok")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("journal")
	m.Settlement("breakeven")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `journal_settlements_total{outcome="breakeven"} 1`)
}

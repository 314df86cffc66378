package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveSearch(0.002, 3, false)
	m.ObserveSearch(0.001, 3, true)
	m.ObserveSearch(0.001, 0, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SearchResultsCount))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SearchLatency))
}

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveQuery("ask", "off_topic")
	m.ObserveQuery("ask", "off_topic")
	m.ObserveQuery("search", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ask", "off_topic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search", "ok")))
}

func TestIndexAndRebuild(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetIndex(2, 140, 3)
	m.ObserveRebuild(0.01, nil)
	m.ObserveRebuild(0.02, errors.New("source unavailable"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexDocuments))
	assert.Equal(t, 140.0, testutil.ToFloat64(m.IndexTerms))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuildsTotal.WithLabelValues("failure")))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetBreakerState("redis-cache", 1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pfsearch_circuit_breaker_state{name="redis-cache"} 1`)
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountersAndGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordLedgerCall("LookupAccountTransactions", "success", "algonode", 0.2)
	m.RecordLedgerCall("LookupAccountTransactions", "error", "algonode", 0.1)
	m.RecordExtracted("roasting", "written")
	m.RecordExtracted("roasting", "written")
	m.RecordExtractionError("harvest")
	m.RecordCheckpoint("ACCT", 4200)
	m.RecordSyncRun("incremental", "partial", 3)
	m.RecordDBQuery("save_transaction", "algorand_transactions", 0.01, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCallsTotal.WithLabelValues("LookupAccountTransactions", "error", "algonode")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsExtractedTotal.WithLabelValues("roasting", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractionErrorsTotal.WithLabelValues("harvest")))
	assert.Equal(t, 4200.0, testutil.ToFloat64(m.checkpointRound.WithLabelValues("ACCT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("incremental", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("save_transaction", "error")))
}

func TestHTTPMetricsMiddleware_LabelsByPattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sync", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /api/v1/transactions/{tx_id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	handler := HTTPMetricsMiddleware(m)(mux)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TXA", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TXB", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/sync", "POST", "5xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/transactions/{tx_id}", "GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("unmatched", "GET", "4xx")))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern  string
		expected string
	}{
		{"GET /health", "/health"},
		{"GET /api/v1/transactions/{tx_id}", "/api/v1/transactions/{tx_id}"},
		{"/api/v1/sync", "/api/v1/sync"},
		{"GET example.com/health", "/health"},
		{"", "unmatched"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, RouteLabel(tt.pattern), tt.pattern)
	}
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "4xx", statusCodeToString(404))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(99))
}

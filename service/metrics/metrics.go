package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Ledger (indexer) Metrics
	ledgerCallsTotal     *prometheus.CounterVec
	ledgerCallDuration   *prometheus.HistogramVec
	ledgerRecordsPerPage *prometheus.HistogramVec

	// Ingestion Metrics
	transactionsFetchedTotal *prometheus.CounterVec
	transactionsStoredTotal  *prometheus.CounterVec
	recordFailuresTotal      *prometheus.CounterVec
	notesDecodedTotal        *prometheus.CounterVec
	recordsExtractedTotal    *prometheus.CounterVec
	extractionErrorsTotal    *prometheus.CounterVec
	checkpointRound          *prometheus.GaugeVec

	// Sync run Metrics
	syncRunDuration    *prometheus.HistogramVec
	syncRunsTotal      *prometheus.CounterVec
	activityDuration   *prometheus.HistogramVec
	backfillPagesTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Ledger Metrics
		ledgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_calls_total",
				Help: "Total number of indexer calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_call_duration_seconds",
				Help:    "Duration of indexer calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		ledgerRecordsPerPage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_records_per_page",
				Help:    "Number of transactions returned per indexer page",
				Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Ingestion Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from the indexer",
			},
			[]string{"account", "mode"},
		),
		transactionsStoredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_stored_total",
				Help: "Total number of transactions passed through the idempotent writer",
			},
			[]string{"account"},
		),
		recordFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_failures_total",
				Help: "Total number of per-record persistence failures",
			},
			[]string{"account", "stage"},
		),
		notesDecodedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notes_decoded_total",
				Help: "Total number of transaction notes by decode outcome",
			},
			[]string{"status"},
		),
		recordsExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_extracted_total",
				Help: "Total number of extracted records by kind and write outcome",
			},
			[]string{"kind", "outcome"},
		),
		extractionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_errors_total",
				Help: "Total number of recovered extraction failures by kind",
			},
			[]string{"kind"},
		),
		checkpointRound: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkpoint_round",
				Help: "Last processed round recorded for each tracked account",
			},
			[]string{"account"},
		),

		// Sync run Metrics
		syncRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_run_duration_seconds",
				Help:    "Duration of orchestrator runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"mode", "status"},
		),
		syncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Total number of orchestrator runs by mode and status",
			},
			[]string{"mode", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of Temporal activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),
		backfillPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backfill_pages_total",
				Help: "Total number of pages processed during backfills",
			},
			[]string{"account"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 60},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Ledger metric helpers

// RecordLedgerCall records an indexer call with duration.
func (m *Metrics) RecordLedgerCall(method, status, endpoint string, duration float64) {
	m.ledgerCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.ledgerCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordLedgerRecordsPerPage records the size of an indexer page.
func (m *Metrics) RecordLedgerRecordsPerPage(endpoint string, count float64) {
	m.ledgerRecordsPerPage.WithLabelValues(endpoint).Observe(count)
}

// Ingestion metric helpers

// RecordTransactionsFetched records transactions fetched for an account.
// mode is "incremental", "backfill" or "reparse".
func (m *Metrics) RecordTransactionsFetched(account, mode string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(account, mode).Add(float64(count))
}

// RecordTransactionStored records a transaction written or found by the idempotent writer.
func (m *Metrics) RecordTransactionStored(account string) {
	m.transactionsStoredTotal.WithLabelValues(account).Inc()
}

// RecordRecordFailure records a per-record persistence failure.
// stage is "transaction" or "extracted".
func (m *Metrics) RecordRecordFailure(account, stage string) {
	m.recordFailuresTotal.WithLabelValues(account, stage).Inc()
}

// RecordNoteDecoded records the outcome of decoding a note: "text", "absent" or "invalid".
func (m *Metrics) RecordNoteDecoded(status string) {
	m.notesDecodedTotal.WithLabelValues(status).Inc()
}

// RecordExtracted records an extracted record write. outcome is "written" or "unchanged".
func (m *Metrics) RecordExtracted(kind, outcome string) {
	m.recordsExtractedTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordExtractionError records a recovered extraction failure.
func (m *Metrics) RecordExtractionError(kind string) {
	m.extractionErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordCheckpoint records the current checkpoint round for an account.
func (m *Metrics) RecordCheckpoint(account string, round int64) {
	m.checkpointRound.WithLabelValues(account).Set(float64(round))
}

// Sync run metric helpers

// RecordSyncRun records an orchestrator run.
func (m *Metrics) RecordSyncRun(mode, status string, duration float64) {
	m.syncRunDuration.WithLabelValues(mode, status).Observe(duration)
	m.syncRunsTotal.WithLabelValues(mode, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordBackfillPage records one processed backfill page.
func (m *Metrics) RecordBackfillPage(account string) {
	m.backfillPagesTotal.WithLabelValues(account).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/ingest"
	"github.com/brojonat/algotrace/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccountA = "N47UY6POHDWRJEUCSPD5R22FN3HW2ZKMNHWYLQQJT45ATUFWNU2A4EC6SY"
	testAccountB = "Z6HQTZYTKIHPBJQCYVHNVJZQXIZGRQO2QIKFRTWXMDMW2MI4OCAMKCELUU"
	testTxID     = "QWERTYUIOPASDFGHJKLZXCVBNM234567QWERTYUIOPASDFGHJKLZ"
)

type fakeRunner struct {
	syncResult     *ingest.SyncResult
	backfillResult *ingest.BackfillResult
	err            error
	backfillOpts   *ingest.BackfillOptions
	syncCalls      int
}

func (f *fakeRunner) RunIncrementalSync(ctx context.Context) (*ingest.SyncResult, error) {
	f.syncCalls++
	return f.syncResult, f.err
}

func (f *fakeRunner) RunBackfill(ctx context.Context, opts ingest.BackfillOptions) (*ingest.BackfillResult, error) {
	f.backfillOpts = &opts
	return f.backfillResult, f.err
}

type fakeStore struct {
	pingErr      error
	checkpoints  []*db.Checkpoint
	transactions []*db.Transaction
	records      map[int64][]extract.Record
	listErr      error

	listAccount string
	listLimit   int
	listOffset  int
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) ListCheckpoints(ctx context.Context) ([]*db.Checkpoint, error) {
	return f.checkpoints, f.listErr
}

func (f *fakeStore) ListTransactions(ctx context.Context, account string, limit, offset int) ([]*db.Transaction, error) {
	f.listAccount, f.listLimit, f.listOffset = account, limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.transactions, nil
}

func (f *fakeStore) GetTransactionByTxID(ctx context.Context, txID string) (*db.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	for _, t := range f.transactions {
		if t.TxID == txID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListExtractedRecords(ctx context.Context, txKey int64) ([]extract.Record, error) {
	return f.records[txKey], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		TrackedAccounts:  []string{testAccountA, testAccountB},
		BackfillPageSize: 100,
		BackfillPacing:   time.Second,
	}
}

func newTestServer(store Store, runner SyncRunner) http.Handler {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return New(":0", testConfig(), store, runner, m, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func strPtr(s string) *string { return &s }

func TestRunSync(t *testing.T) {
	tests := []struct {
		name           string
		result         *ingest.SyncResult
		err            error
		expectedStatus int
	}{
		{
			name:           "success",
			result:         &ingest.SyncResult{Status: ingest.StatusSuccess, ProcessedCount: 3},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "partial is still 200",
			result:         &ingest.SyncResult{Status: ingest.StatusPartial, ProcessedCount: 1, FailedRecords: 1},
			expectedStatus: http.StatusOK,
		},
		{
			name: "failed is 502",
			result: &ingest.SyncResult{
				Status:           ingest.StatusFailed,
				PerAccountErrors: map[string]string{testAccountA: "indexer unreachable"},
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "runner error is 500",
			err:            ingest.ErrNoAccounts,
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{syncResult: tt.result, err: tt.err}
			w := do(t, newTestServer(&fakeStore{}, runner), "POST", "/api/v1/sync", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, 1, runner.syncCalls)
			if tt.result != nil {
				var got ingest.SyncResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, tt.result.Status, got.Status)
				assert.Equal(t, tt.result.ProcessedCount, got.ProcessedCount)
			}
		})
	}
}

func TestSyncStatus_MergesTrackedAndCheckpoints(t *testing.T) {
	round := int64(1500)
	synced := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{checkpoints: []*db.Checkpoint{
		{Account: testAccountB, LastProcessedRound: &round, LastSyncedAt: synced},
		{Account: "RETIRED", LastSyncedAt: synced},
	}}

	w := do(t, newTestServer(store, &fakeRunner{}), "GET", "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Accounts []accountStatus `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 3)

	assert.Equal(t, testAccountA, resp.Accounts[0].Account)
	assert.True(t, resp.Accounts[0].Tracked)
	assert.Nil(t, resp.Accounts[0].LastProcessedRound)

	assert.Equal(t, testAccountB, resp.Accounts[1].Account)
	require.NotNil(t, resp.Accounts[1].LastProcessedRound)
	assert.Equal(t, round, *resp.Accounts[1].LastProcessedRound)

	assert.Equal(t, "RETIRED", resp.Accounts[2].Account)
	assert.False(t, resp.Accounts[2].Tracked)
}

func TestBackfill_Validation(t *testing.T) {
	tests := []struct {
		name             string
		body             string
		expectedStatus   int
		expectedError    string
		expectedPageSize uint64
		expectedPacing   time.Duration
	}{
		{
			name:             "empty body uses defaults",
			body:             "",
			expectedStatus:   http.StatusOK,
			expectedPageSize: 100,
			expectedPacing:   time.Second,
		},
		{
			name:             "empty object uses defaults",
			body:             `{}`,
			expectedStatus:   http.StatusOK,
			expectedPageSize: 100,
			expectedPacing:   time.Second,
		},
		{
			name:             "explicit values",
			body:             `{"page_size":1000,"pacing_ms":0}`,
			expectedStatus:   http.StatusOK,
			expectedPageSize: 1000,
			expectedPacing:   0,
		},
		{
			name:           "page size too large",
			body:           `{"page_size":1001}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "page_size must be between 1 and 1000",
		},
		{
			name:           "page size zero",
			body:           `{"page_size":0}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "page_size must be between 1 and 1000",
		},
		{
			name:           "negative pacing",
			body:           `{"pacing_ms":-1}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "pacing_ms must be between 0 and 60000",
		},
		{
			name:           "pacing too large",
			body:           `{"pacing_ms":60001}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "pacing_ms must be between 0 and 60000",
		},
		{
			name:           "malformed JSON",
			body:           `{"page_size":`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "wrong type",
			body:           `{"page_size":"big"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "extremely large request body",
			body:           `{"page_size":100,"pad":"` + strings.Repeat("A", 2*1024*1024) + `"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "request body too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{backfillResult: &ingest.BackfillResult{Status: ingest.StatusSuccess}}
			w := do(t, newTestServer(&fakeStore{}, runner), "POST", "/api/v1/sync/historical", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
				assert.Nil(t, runner.backfillOpts, "runner must not be called on invalid input")
				return
			}
			require.NotNil(t, runner.backfillOpts)
			assert.Equal(t, tt.expectedPageSize, runner.backfillOpts.PageSize)
			assert.Equal(t, tt.expectedPacing, runner.backfillOpts.Pacing)
		})
	}
}

func TestBackfill_FailedIs502(t *testing.T) {
	runner := &fakeRunner{backfillResult: &ingest.BackfillResult{
		Status:           ingest.StatusFailed,
		PerAccountErrors: map[string]string{testAccountA: "boom"},
	}}
	w := do(t, newTestServer(&fakeStore{}, runner), "POST", "/api/v1/sync/historical", `{}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
}

func TestListTransactions(t *testing.T) {
	store := &fakeStore{transactions: []*db.Transaction{
		{Key: 1, TxID: testTxID, Account: testAccountA, Round: 10},
	}}

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedError  string
		expectedLimit  int
		expectedOffset int
		expectedAcct   string
	}{
		{name: "defaults", query: "", expectedStatus: http.StatusOK, expectedLimit: 50},
		{name: "account filter", query: "?account=" + testAccountA + "&limit=10&offset=5", expectedStatus: http.StatusOK, expectedLimit: 10, expectedOffset: 5, expectedAcct: testAccountA},
		{name: "max limit", query: "?limit=1000", expectedStatus: http.StatusOK, expectedLimit: 1000},
		{name: "limit too large", query: "?limit=1001", expectedStatus: http.StatusBadRequest, expectedError: "limit cannot exceed 1000"},
		{name: "limit zero", query: "?limit=0", expectedStatus: http.StatusBadRequest, expectedError: "limit must be at least 1"},
		{name: "limit not a number", query: "?limit=ten", expectedStatus: http.StatusBadRequest, expectedError: "invalid limit parameter"},
		{name: "negative offset", query: "?offset=-1", expectedStatus: http.StatusBadRequest, expectedError: "offset cannot be negative"},
		{name: "bad checksum", query: "?account=" + testAccountA[:57] + "B", expectedStatus: http.StatusBadRequest, expectedError: "invalid address format"},
		{name: "sql injection", query: "?account=x%27%3B%20DROP%20TABLE%20t%3B--", expectedStatus: http.StatusBadRequest, expectedError: "invalid address format"},
		{name: "control characters", query: "?account=abc%00def", expectedStatus: http.StatusBadRequest, expectedError: "control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(store, &fakeRunner{}), "GET", "/api/v1/transactions"+tt.query, "")
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
				return
			}

			assert.Equal(t, tt.expectedLimit, store.listLimit)
			assert.Equal(t, tt.expectedOffset, store.listOffset)
			assert.Equal(t, tt.expectedAcct, store.listAccount)

			var resp struct {
				Transactions []db.Transaction `json:"transactions"`
				Count        int              `json:"count"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, 1, resp.Count)
			assert.Equal(t, testTxID, resp.Transactions[0].TxID)
		})
	}
}

func TestListTransactions_EmptyIsArray(t *testing.T) {
	w := do(t, newTestServer(&fakeStore{}, &fakeRunner{}), "GET", "/api/v1/transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transactions":[]`)
}

func TestListTransactions_StoreError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	w := do(t, newTestServer(store, &fakeRunner{}), "GET", "/api/v1/transactions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestGetTransaction(t *testing.T) {
	store := &fakeStore{
		transactions: []*db.Transaction{
			{Key: 7, TxID: testTxID, Account: testAccountA, Round: 99, NoteDecoded: strPtr("ROASTING ...")},
		},
		records: map[int64][]extract.Record{
			7: {
				&extract.Roasting{TypeOfRoast: strPtr("Medium")},
				&extract.Processing{SortEntry: strPtr("12")},
			},
		},
	}
	h := newTestServer(store, &fakeRunner{})

	t.Run("found", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/transactions/"+testTxID, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Key     int64  `json:"key"`
			TxID    string `json:"tx_id"`
			Records []struct {
				Kind   string          `json:"kind"`
				Fields json.RawMessage `json:"fields"`
			} `json:"records"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(7), resp.Key)
		assert.Equal(t, testTxID, resp.TxID)
		require.Len(t, resp.Records, 2)
		assert.Equal(t, "roasting", resp.Records[0].Kind)
		assert.JSONEq(t, `{"type_of_roast":"Medium"}`, string(resp.Records[0].Fields))
		assert.Equal(t, "processing", resp.Records[1].Kind)
	})

	t.Run("not found", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/transactions/"+strings.Repeat("A", 52), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/transactions/not-a-tx-id", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid tx_id")
	})
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(&fakeStore{}, &fakeRunner{}), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = do(t, newTestServer(&fakeStore{pingErr: errors.New("down")}, &fakeRunner{}), "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeRunner{})

	w := do(t, h, "OPTIONS", "/api/v1/sync", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = do(t, h, "GET", "/health", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeRunner{})
	w := do(t, h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_RecordsRouteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &fakeStore{transactions: []*db.Transaction{{Key: 1, TxID: testTxID}}}
	h := New(":0", testConfig(), store, &fakeRunner{}, metrics.NewMetrics(reg), testLogger()).Handler()

	do(t, h, "GET", "/api/v1/transactions/"+testTxID, "")
	do(t, h, "GET", "/api/v1/transactions/"+strings.Repeat("A", 52), "")

	families, err := reg.Gather()
	require.NoError(t, err)
	var handlers []string
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "handler" {
					handlers = append(handlers, label.GetValue())
				}
			}
		}
	}
	// Two tx ids, one route label; the 404 lands in a separate status series.
	assert.ElementsMatch(t, []string{"/api/v1/transactions/{tx_id}", "/api/v1/transactions/{tx_id}"}, handlers)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeRunner{})
	w := do(t, h, "DELETE", "/api/v1/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

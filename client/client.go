// Package client is the HTTP client for the algotrace ingestion server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AccountOutcome is the per-account part of a sync or backfill result.
type AccountOutcome struct {
	Account         string `json:"account"`
	Processed       int    `json:"processed"`
	FailedRecords   int    `json:"failed_records"`
	Pages           int    `json:"pages"`
	CheckpointRound *int64 `json:"checkpoint_round,omitempty"`
	Error           string `json:"error,omitempty"`
}

// SyncResult is the response of an incremental sync.
type SyncResult struct {
	Status           string            `json:"status"` // success, partial, failed
	ProcessedCount   int               `json:"processed_count"`
	FailedRecords    int               `json:"failed_records"`
	Accounts         []AccountOutcome  `json:"accounts"`
	PerAccountErrors map[string]string `json:"per_account_errors,omitempty"`
}

// BackfillResult is the response of a historical backfill.
type BackfillResult struct {
	Status            string            `json:"status"`
	TotalRecords      int               `json:"total_records"`
	PagesProcessed    int               `json:"pages_processed"`
	AccountsProcessed int               `json:"accounts_processed"`
	FailedRecords     int               `json:"failed_records"`
	Accounts          []AccountOutcome  `json:"accounts"`
	PerAccountErrors  map[string]string `json:"per_account_errors,omitempty"`
}

// AccountStatus is one account's checkpoint as reported by the server.
type AccountStatus struct {
	Account            string     `json:"account"`
	Tracked            bool       `json:"tracked"`
	LastProcessedRound *int64     `json:"last_processed_round"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty"`
}

// Transaction is a stored ledger transaction.
type Transaction struct {
	Key         int64     `json:"key"`
	TxID        string    `json:"tx_id"`
	Account     string    `json:"account"`
	Round       int64     `json:"round"`
	RoundTime   time.Time `json:"round_time"`
	Sender      string    `json:"sender"`
	Receiver    *string   `json:"receiver,omitempty"`
	Amount      *int64    `json:"amount,omitempty"`
	Fee         int64     `json:"fee"`
	TxType      string    `json:"tx_type"`
	NoteDecoded *string   `json:"note_decoded,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExtractedRecord is one parsed record. Fields holds the kind-specific JSON object.
type ExtractedRecord struct {
	Kind   string          `json:"kind"`
	Fields json.RawMessage `json:"fields"`
}

// TransactionDetail is a transaction with its parsed records.
type TransactionDetail struct {
	Transaction
	Records []ExtractedRecord `json:"records"`
}

// TransactionList is one page of transactions.
type TransactionList struct {
	Transactions []*Transaction `json:"transactions"`
	Count        int            `json:"count"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the algotrace server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client. Sync and backfill requests block until
// the run completes, so the default http.Client has no timeout; bound calls
// with ctx instead.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// TriggerSync runs an incremental sync on the server.
// When every account failed the server answers 502; the result is still
// returned alongside the *APIError.
func (c *Client) TriggerSync(ctx context.Context) (*SyncResult, error) {
	var result SyncResult
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/sync", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadGateway {
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Status != "" {
			return &result, &APIError{StatusCode: resp.StatusCode, Message: "sync failed for every account"}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "sync failed"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("sync triggered", "status", result.Status, "processed", result.ProcessedCount)
	return &result, nil
}

// BackfillRequest configures a backfill. Nil fields use the server defaults.
type BackfillRequest struct {
	PageSize *int   `json:"page_size,omitempty"`
	PacingMs *int64 `json:"pacing_ms,omitempty"`
}

// TriggerBackfill runs a historical backfill on the server.
func (c *Client) TriggerBackfill(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/sync/historical", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result BackfillResult
	if resp.StatusCode == http.StatusBadGateway {
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Status != "" {
			return &result, &APIError{StatusCode: resp.StatusCode, Message: "backfill failed for every account"}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "backfill failed"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("backfill triggered", "status", result.Status, "total_records", result.TotalRecords)
	return &result, nil
}

// SyncStatus lists checkpoints for the tracked accounts.
func (c *Client) SyncStatus(ctx context.Context) ([]AccountStatus, error) {
	var response struct {
		Accounts []AccountStatus `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/api/v1/sync", &response); err != nil {
		return nil, err
	}
	return response.Accounts, nil
}

// ListTransactions lists stored transactions. An empty account lists all.
// A zero limit uses the server default.
func (c *Client) ListTransactions(ctx context.Context, account string, limit, offset int) (*TransactionList, error) {
	q := url.Values{}
	if account != "" {
		q.Set("account", account)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list TransactionList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTransaction returns one transaction with its parsed records.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*TransactionDetail, error) {
	var detail TransactionDetail
	if err := c.getJSON(ctx, "/api/v1/transactions/"+url.PathEscape(txID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Health checks that the server and its database are reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
